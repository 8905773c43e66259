package ftptree

import (
	"log/slog"
	"strconv"
	"strings"
)

const (
	// dataFields is the number of fields in a Unix "ls -l" style data line:
	// perms links owner group size month day time name
	dataFields = 9

	// symlinkFields is a data line followed by "-> target".
	symlinkFields = 11

	headerSuffix = ":"
	separator    = "/"
)

// ParseListing converts the lines of a LIST or LIST -R reply into entries.
//
// root is the directory that was listed. It is used to build Entry.Path until
// a header line (for example "/pub/sub:") announces a new directory, after
// which paths are built from that header.
//
// Only 9-field data lines are understood. Names containing whitespace break
// the fixed field split and such lines are skipped rather than guessed at.
func ParseListing(lines []string, root string, ignoreDots bool) []*Entry {
	entries, _ := parseListing(lines, root, ignoreDots, nil)
	return entries
}

// parseListing is ParseListing that also reports how many header lines were
// seen, which tells a server-side recursive listing apart from a server that
// silently ignored the -R flag.
func parseListing(lines []string, root string, ignoreDots bool, logger *slog.Logger) ([]*Entry, int) {
	var (
		entries []*Entry
		context string
		headers int
	)

	for _, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		fields := strings.Fields(line)

		switch {
		case len(fields) == 0:
			continue

		case isHeader(line, fields):
			context = headerPath(root, line)
			headers++

		case len(fields) == dataFields || isSymlinkLine(fields):
			entry := newEntry(line, fields, logger)
			if ignoreDots && isDots(entry.Name) {
				continue
			}
			dir := root
			if headers > 0 {
				dir = context
			}
			entry.Path = joinPath(dir, entry.Name)
			entries = append(entries, entry)

		default:
			if logger != nil {
				logger.Debug("skipping unrecognized listing line", "raw", line, "fields", len(fields))
			}
		}
	}

	return entries, headers
}

// isHeader reports whether line announces a subdirectory in a recursive
// listing: it is not a data line, starts at column zero and ends with ':'.
func isHeader(line string, fields []string) bool {
	if len(fields) == dataFields || isSymlinkLine(fields) {
		return false
	}
	if line[0] == ' ' || line[0] == '\t' {
		return false
	}
	return strings.HasSuffix(strings.TrimRight(line, " \t"), headerSuffix)
}

func isSymlinkLine(fields []string) bool {
	return len(fields) == symlinkFields && fields[9] == "->" && Classify(fields[0]) == KindSymlink
}

func newEntry(line string, fields []string, logger *slog.Logger) *Entry {
	e := &Entry{
		Permissions: fields[0],
		Kind:        Classify(fields[0]),
		LinkCount:   fields[1],
		Owner:       fields[2],
		Group:       fields[3],
		Month:       fields[5],
		Day:         fields[6],
		Time:        fields[7],
		Name:        fields[8],
		Raw:         line,
	}
	if len(fields) == symlinkFields {
		e.Target = fields[10]
	}

	size, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		if logger != nil {
			logger.Debug("unparsable size in listing line", "raw", line, "size_field", fields[4])
		}
	} else {
		e.Size = size
	}
	return e
}

// headerPath turns a header line such as "/pub/sub:" or "./sub:" into the
// directory the following data lines belong to.
func headerPath(root, line string) string {
	h := strings.TrimSuffix(strings.TrimRight(line, " \t"), headerSuffix)

	switch {
	case h == "." || h == "":
		return root
	case strings.HasPrefix(h, separator):
		return h
	case strings.HasPrefix(h, "."+separator):
		return joinPath(root, strings.TrimPrefix(h, "."+separator))
	case root == "" || root == "." || h == root || strings.HasPrefix(h, strings.TrimSuffix(root, separator)+separator):
		return h
	default:
		return joinPath(root, h)
	}
}

// joinPath joins a directory and a base name with exactly one separator.
// Unlike path.Join it does not clean the result, so what the server sent
// is kept as is.
func joinPath(dir, name string) string {
	switch {
	case dir == "" || dir == ".":
		return name
	case strings.HasSuffix(dir, separator):
		return dir + name
	default:
		return dir + separator + name
	}
}
