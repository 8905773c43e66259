package ftptree

import "time"

// Executor is the control-channel session the tree operations run on.
// *ftp.Client satisfies it.
//
// Negative server replies must be returned as errors implementing
// ReplyCode() int; any other error is treated as a transport failure.
// An Executor is used by one goroutine at a time.
type Executor interface {
	// NameList issues NLST and returns the names it lists.
	NameList(path string) ([]string, error)

	// RawList issues LIST (or LIST -R when recursive) and returns the reply
	// lines unparsed.
	RawList(path string, recursive bool) ([]string, error)

	ChangeDir(path string) error
	CurrentDir() (string, error)
	MakeDir(path string) error
	RemoveDir(path string) error
	Delete(path string) error
	Rename(from, to string) error

	// Size issues SIZE. Servers reject it for directories.
	Size(path string) (int64, error)

	// ModTime issues MDTM.
	ModTime(path string) (time.Time, error)

	// Features returns the FEAT reply as feature name to parameters.
	Features() (map[string]string, error)
}
