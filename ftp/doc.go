// Package ftp implements the control-channel side of an FTP client: the
// commands needed to inspect and reshape a remote directory tree.
//
// # Overview
//
// The client covers:
//   - Login and session keep-alive (NOOP)
//   - Passive (EPSV/PASV) and active (PORT/EPRT) data connections
//   - Raw LIST and LIST -R replies, and NLST name lists
//   - CWD, CDUP, PWD, MKD, RMD, DELE, RNFR/RNTO
//   - SIZE and MDTM (RFC 3659), FEAT (RFC 2389), SYST and HELP
//   - Command pacing for servers with flood protection
//
// File content transfer is out of scope. *Client satisfies the Executor
// interface of the parent ftptree package, which builds recursive
// operations on top of these commands.
//
// # Basic Usage
//
//	client, err := ftp.Dial("ftp.example.com:21",
//	    ftp.WithTimeout(10*time.Second),
//	    ftp.WithCommandRate(20),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
//
//	if err := client.Login("username", "password"); err != nil {
//	    log.Fatal(err)
//	}
//
//	lines, err := client.RawList("/pub", true)
//
// # Error Handling
//
// A negative server reply is returned as a *ProtocolError carrying the
// command, the reply text and the code. Any other error means the
// connection itself failed and the session should be discarded:
//
//	if err := client.RemoveDir("/pub/old"); err != nil {
//	    var pe *ftp.ProtocolError
//	    if errors.As(err, &pe) && pe.IsPermanent() {
//	        fmt.Printf("%s refused: %s (%d)\n", pe.Command, pe.Response, pe.Code)
//	    }
//	}
package ftp
