// Package ftptree provides filesystem-like operations on a remote FTP tree:
// parsing of LIST replies, recursive listing, counting, size computation,
// recursive creation and removal, existence checks, renaming and moving.
//
// # Sessions
//
// Operations run on an Executor, an already logged-in control connection.
// The ftp subpackage provides one:
//
//	client, err := ftp.Dial("ftp.example.com:21")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
//
//	if err := client.Login("anonymous", "anonymous@"); err != nil {
//	    log.Fatal(err)
//	}
//
//	tree := ftptree.New(client)
//	size, err := tree.DirSize("/pub")
//
// A Tree is not safe for concurrent use, because FTP allows one command in
// flight per connection. Use one Tree per session; DirSizeParallel shows how
// several sessions can share one job.
//
// # Listings
//
// ParseListing understands Unix "ls -l" style lines with exactly nine
// fields, and the header lines ("/pub/sub:") that separate directories in a
// LIST -R reply. Entry paths are rebuilt from those headers. Names that
// contain whitespace cannot be split reliably and are skipped.
//
// # Errors
//
// Errors are *OpError values that match one of the sentinels with errors.Is:
//
//	if _, err := tree.DirSize("/pub"); errors.Is(err, ftptree.ErrCapabilityUnavailable) {
//	    // the server does not support SIZE
//	}
//
// Multi-step operations are not atomic. MkdirAll and RemoveAll return a
// Journal of every command they issued, so a caller can see how far they got
// when they fail with ErrPartialMutation.
package ftptree
