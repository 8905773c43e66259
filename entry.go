package ftptree

// Kind is the semantic type of a directory entry, derived from the first
// character of its permission string.
type Kind int

const (
	KindUnknown Kind = iota
	KindFile
	KindDir
	KindSymlink
)

// String returns "file", "dir", "link" or "unknown".
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "link"
	default:
		return "unknown"
	}
}

// Classify maps a permission string such as "drwxr-xr-x" to a Kind.
// It never fails: anything it does not recognize is KindUnknown.
func Classify(perms string) Kind {
	if perms == "" {
		return KindUnknown
	}
	switch perms[0] {
	case '-':
		return KindFile
	case 'd':
		return KindDir
	case 'l':
		return KindSymlink
	default:
		return KindUnknown
	}
}

// Entry is one parsed data line of a LIST reply.
//
// Apart from Name, Kind, Size and Path every field is passed through exactly
// as the server sent it. In particular Month, Day and Time are not normalized
// into a time.Time, because their format depends on the server and on the age
// of the file.
type Entry struct {
	// Name is the base name, never a path.
	Name string

	Kind Kind

	// Permissions is the raw permission string, e.g. "-rw-r--r--".
	Permissions string

	LinkCount string
	Owner     string
	Group     string

	// Size in bytes. Meaningless for directories on most servers.
	Size int64

	Month string
	Day   string
	Time  string

	// Path is the full remote path, rebuilt from the requested directory or
	// from the most recent header line of a recursive listing.
	Path string

	// Target is the link target for "name -> target" symlink lines.
	Target string

	// Raw is the line the entry was parsed from.
	Raw string
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Kind == KindDir
}

func isDots(name string) bool {
	return name == "." || name == ".."
}
