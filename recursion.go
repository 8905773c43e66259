package ftptree

// Recursion selects how ListRecursive descends into subdirectories.
type Recursion int

const (
	// RecursionAuto asks the server for LIST -R and falls back to
	// RecursionClient when the reply shows the flag was not honoured.
	RecursionAuto Recursion = iota

	// RecursionServer always relies on LIST -R.
	RecursionServer

	// RecursionClient lists one level at a time and recurses into every
	// directory entry itself. Symbolic links are not followed.
	RecursionClient
)

func (r Recursion) String() string {
	switch r {
	case RecursionServer:
		return "server"
	case RecursionClient:
		return "client"
	default:
		return "auto"
	}
}

// ParseRecursion maps "auto", "server" or "client" to a Recursion.
func ParseRecursion(s string) (Recursion, bool) {
	switch s {
	case "", "auto":
		return RecursionAuto, true
	case "server":
		return RecursionServer, true
	case "client":
		return RecursionClient, true
	}
	return RecursionAuto, false
}

// ListRecursive lists dir and everything below it. Every entry's Path is
// its full remote path.
func (t *Tree) ListRecursive(dir string, ignoreDots bool) ([]*Entry, error) {
	if t.recursion == RecursionClient || (t.recursion == RecursionAuto && t.noServerRecursion) {
		return t.walk(dir, ignoreDots)
	}

	lines, err := t.exec.RawList(dir, true)
	if err != nil {
		if t.recursion == RecursionAuto && !IsTransport(err) {
			t.logger.Debug("LIST -R rejected, listing client side", "path", dir, "error", err)
			t.noServerRecursion = true
			return t.walk(dir, ignoreDots)
		}
		return nil, classify("list", dir, err)
	}

	entries, headers := parseListing(lines, dir, ignoreDots, t.logger)
	if t.recursion != RecursionAuto || headers > 0 {
		return entries, nil
	}

	// No header line at all: either dir has no subdirectories, or the
	// server ignored -R and sent a plain listing.
	if hasDir(entries) {
		t.logger.Debug("LIST -R not honoured, listing client side", "path", dir)
		t.noServerRecursion = true
		return t.walkFrom(dir, ignoreDots, entries)
	}
	if len(entries) == 0 {
		return t.walk(dir, ignoreDots)
	}
	return entries, nil
}

// walk is the client-side recursion: a single-level List of dir followed by
// a walk of each directory entry, in listing order.
func (t *Tree) walk(dir string, ignoreDots bool) ([]*Entry, error) {
	level, err := t.List(dir, ignoreDots)
	if err != nil {
		return nil, err
	}
	return t.walkFrom(dir, ignoreDots, level)
}

func (t *Tree) walkFrom(dir string, ignoreDots bool, level []*Entry) ([]*Entry, error) {
	out := append([]*Entry(nil), level...)

	for _, e := range level {
		if e.Kind != KindDir || isDots(e.Name) {
			continue
		}

		sub, err := t.walk(e.Path, ignoreDots)
		if err != nil {
			if IsTransport(err) {
				return nil, err
			}
			t.logger.Warn("skipping unlistable directory", "path", e.Path, "error", err)
			continue
		}
		out = append(out, sub...)
	}
	return out, nil
}

func hasDir(entries []*Entry) bool {
	for _, e := range entries {
		if e.Kind == KindDir && !isDots(e.Name) {
			return true
		}
	}
	return false
}
