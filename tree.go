package ftptree

import (
	"log/slog"
	"path"
	"strings"
	"time"
)

// dirSentinel is what querySize reports for anything SIZE refuses,
// which in practice means a directory.
const dirSentinel = -1

// Tree runs filesystem-like operations against one FTP session.
//
// A Tree has no locking of its own. FTP allows a single command in flight
// per control connection, so a Tree must only be used by one goroutine at
// a time. Independent sessions may each have their own Tree.
type Tree struct {
	exec      Executor
	caps      *Capabilities
	logger    *slog.Logger
	recursion Recursion

	// noServerRecursion is set once the server has shown that it does not
	// honour LIST -R, so later calls go straight to client-side recursion.
	noServerRecursion bool
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) {
		t.logger = logger
	}
}

// WithRecursion selects how ListRecursive walks a tree.
func WithRecursion(r Recursion) Option {
	return func(t *Tree) {
		t.recursion = r
	}
}

// WithCapabilities shares a capability set between several Trees on the
// same session.
func WithCapabilities(caps *Capabilities) Option {
	return func(t *Tree) {
		t.caps = caps
	}
}

// New returns a Tree operating on exec, which must already be logged in.
func New(exec Executor, opts ...Option) *Tree {
	t := &Tree{
		exec:   exec,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.caps == nil {
		t.caps = NewCapabilities(exec)
	}
	return t
}

// Capabilities returns the capability set of the session.
func (t *Tree) Capabilities() *Capabilities {
	return t.caps
}

// HasFeature reports whether the server advertises feature in FEAT.
func (t *Tree) HasFeature(feature string) (bool, error) {
	return t.caps.Has(feature)
}

// Features returns the feature names the server advertises, sorted.
func (t *Tree) Features() ([]string, error) {
	return t.caps.Names()
}

// IsDir reports whether p is a directory by trying to change into it.
// The working directory is restored afterwards whether or not the probe
// succeeded. Any failure, including p not existing, yields false.
func (t *Tree) IsDir(p string) bool {
	orig, err := t.exec.CurrentDir()
	if err != nil {
		t.logger.Debug("cannot save working directory", "path", p, "error", err)
		return false
	}

	probeErr := t.exec.ChangeDir(p)

	if err := t.exec.ChangeDir(orig); err != nil {
		t.logger.Warn("cannot restore working directory", "dir", orig, "error", err)
	}

	return probeErr == nil
}

// Exists reports whether the base name of p appears in an NLST of its
// parent. Entries the server hides from the parent listing are reported as
// missing.
func (t *Tree) Exists(p string) (bool, error) {
	p = trimSlash(p)
	if p == separator {
		return true, nil
	}

	dir, base := path.Dir(p), path.Base(p)
	names, err := t.exec.NameList(dir)
	if err != nil {
		if IsTransport(err) {
			return false, classify("exists", p, err)
		}
		return false, nil
	}

	for _, name := range names {
		if path.Base(name) == base {
			return true, nil
		}
	}
	return false, nil
}

// Names returns the names NLST reports for dir, as base names.
func (t *Tree) Names(dir string, ignoreDots bool) ([]string, error) {
	names, err := t.exec.NameList(dir)
	if err != nil {
		return nil, classify("names", dir, err)
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		base := path.Base(name)
		if ignoreDots && isDots(base) {
			continue
		}
		out = append(out, base)
	}
	return out, nil
}

// Files returns the names in dir that are not directories.
func (t *Tree) Files(dir string) ([]string, error) {
	return t.filterNames(dir, false)
}

// Dirs returns the names in dir that are directories.
func (t *Tree) Dirs(dir string) ([]string, error) {
	return t.filterNames(dir, true)
}

func (t *Tree) filterNames(dir string, wantDirs bool) ([]string, error) {
	names, err := t.Names(dir, true)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, name := range names {
		if t.IsDir(joinPath(dir, name)) == wantDirs {
			out = append(out, name)
		}
	}
	return out, nil
}

// List parses a single-level LIST of dir.
func (t *Tree) List(dir string, ignoreDots bool) ([]*Entry, error) {
	lines, err := t.exec.RawList(dir, false)
	if err != nil {
		return nil, classify("list", dir, err)
	}
	entries, _ := parseListing(lines, dir, ignoreDots, t.logger)
	return entries, nil
}

// Count returns the number of entries List or ListRecursive would return.
func (t *Tree) Count(dir string, recursive, ignoreDots bool) (int, error) {
	var (
		entries []*Entry
		err     error
	)
	if recursive {
		entries, err = t.ListRecursive(dir, ignoreDots)
	} else {
		entries, err = t.List(dir, ignoreDots)
	}
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// querySize issues SIZE and maps a negative reply to dirSentinel.
func querySize(exec Executor, p string) (int64, error) {
	n, err := exec.Size(p)
	if err != nil {
		if IsTransport(err) {
			return 0, classify("size", p, err)
		}
		return dirSentinel, nil
	}
	return n, nil
}

// FileSize returns the size of the file p. It needs the SIZE feature and
// refuses directories.
func (t *Tree) FileSize(p string) (int64, error) {
	if err := t.caps.require("size", p, "SIZE"); err != nil {
		return 0, err
	}
	if t.IsDir(p) {
		return 0, precondition("size", p, "is a directory")
	}

	n, err := t.exec.Size(p)
	if err != nil {
		return 0, classify("size", p, err)
	}
	return n, nil
}

// ModTime returns the modification time of the file p. It needs the MDTM
// feature and refuses directories.
func (t *Tree) ModTime(p string) (time.Time, error) {
	if err := t.caps.require("mtime", p, "MDTM"); err != nil {
		return time.Time{}, err
	}
	if t.IsDir(p) {
		return time.Time{}, precondition("mtime", p, "is a directory")
	}

	mt, err := t.exec.ModTime(p)
	if err != nil {
		return time.Time{}, classify("mtime", p, err)
	}
	return mt, nil
}

// DirSize returns the sum of the sizes of every file below dir.
//
// It lists dir recursively and then issues one SIZE per non-directory entry,
// so it costs a round trip per file. See DirSizeParallel for spreading those
// over several sessions.
func (t *Tree) DirSize(dir string) (int64, error) {
	entries, err := t.sizeTargets(dir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, e := range entries {
		n, err := querySize(t.exec, e.Path)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			total += n
		}
	}
	return total, nil
}

// sizeTargets checks the preconditions of DirSize and returns the entries
// that need a SIZE query.
func (t *Tree) sizeTargets(dir string) ([]*Entry, error) {
	if err := t.caps.require("dirsize", dir, "SIZE"); err != nil {
		return nil, err
	}
	if !t.IsDir(dir) {
		return nil, precondition("dirsize", dir, "not a directory")
	}

	entries, err := t.ListRecursive(dir, true)
	if err != nil {
		return nil, err
	}

	var targets []*Entry
	for _, e := range entries {
		if e.Kind != KindDir {
			targets = append(targets, e)
		}
	}
	return targets, nil
}

// MkdirAll creates p and any missing parents, like mkdir -p. It fails with
// ErrPrecondition when p is already a directory.
//
// Every prefix of p is probed before it is created, so running MkdirAll
// again after a partial failure picks up where the previous run stopped.
func (t *Tree) MkdirAll(p string) (*Journal, error) {
	j := &Journal{}
	if t.IsDir(p) {
		return j, precondition("mkdir", p, "directory already exists")
	}

	segs := strings.Split(p, separator)
	for i, seg := range segs {
		if seg == "" {
			continue
		}
		prefix := strings.Join(segs[:i+1], separator)
		if t.IsDir(prefix) {
			continue
		}

		err := t.exec.MakeDir(prefix)
		j.record("mkdir", prefix, err)
		if err != nil {
			t.logger.Debug("mkdir failed", "path", prefix, "error", err)
			if IsTransport(err) {
				return j, classify("mkdir", prefix, err)
			}
			return j, j.partial("mkdir", p)
		}
	}
	return j, nil
}

// RemoveAll deletes the directory p and everything below it.
//
// p must be a directory, which is checked by SIZE being refused for it, so
// the SIZE feature is required. Files are deleted directly; each
// subdirectory is first removed as if empty and only walked when that fails.
// Nothing is rolled back: when an error is returned the Journal tells which
// steps were already applied.
func (t *Tree) RemoveAll(p string) (*Journal, error) {
	j := &Journal{}
	if err := t.caps.require("rmtree", p, "SIZE"); err != nil {
		return j, err
	}

	n, err := querySize(t.exec, p)
	if err != nil {
		return j, err
	}
	if n != dirSentinel {
		return j, precondition("rmtree", p, "not a directory")
	}

	if err := t.removeTree(p, j); err != nil {
		return j, err
	}

	if last := j.Steps[len(j.Steps)-1]; last.Err != nil {
		return j, j.partial("rmtree", p)
	}
	return j, nil
}

// removeTree empties dir and then removes it. Only transport failures stop
// it early; rejected steps are left in the journal.
func (t *Tree) removeTree(dir string, j *Journal) error {
	names, err := t.exec.NameList(dir)
	if err != nil {
		if IsTransport(err) {
			return classify("rmtree", dir, err)
		}
		// Some servers answer NLST of an empty directory with 550.
		names = nil
	}

	for _, name := range names {
		base := path.Base(name)
		if isDots(base) {
			continue
		}
		child := joinPath(dir, base)

		n, err := querySize(t.exec, child)
		if err != nil {
			return err
		}

		if n != dirSentinel {
			err := t.exec.Delete(child)
			j.record("delete", child, err)
			if IsTransport(err) {
				return classify("delete", child, err)
			}
			continue
		}

		err = t.exec.RemoveDir(child)
		if err == nil {
			j.record("rmdir", child, nil)
			continue
		}
		if IsTransport(err) {
			j.record("rmdir", child, err)
			return classify("rmdir", child, err)
		}

		if err := t.removeTree(child, j); err != nil {
			return err
		}
	}

	err = t.exec.RemoveDir(dir)
	j.record("rmdir", dir, err)
	if IsTransport(err) {
		return classify("rmdir", dir, err)
	}
	return nil
}

// RemoveFile deletes the file p, which must exist and not be a directory.
func (t *Tree) RemoveFile(p string) error {
	ok, err := t.Exists(p)
	if err != nil {
		return err
	}
	if !ok {
		return precondition("delete", p, "no such file")
	}
	if t.IsDir(p) {
		return precondition("delete", p, "is a directory")
	}

	if err := t.exec.Delete(p); err != nil {
		return classify("delete", p, err)
	}
	return nil
}

// Rename renames from to to. It refuses to overwrite: when to already
// exists no rename command is sent. The check and the rename are two
// separate commands, so another client can still race in between.
func (t *Tree) Rename(from, to string) error {
	exists, err := t.Exists(to)
	if err != nil {
		return err
	}
	if exists {
		return precondition("rename", to, "destination already exists")
	}

	if err := t.exec.Rename(from, to); err != nil {
		return classify("rename", from, err)
	}
	return nil
}

// Move moves source into the existing directory destDir, keeping its base
// name.
func (t *Tree) Move(source, destDir string) error {
	if !t.IsDir(destDir) {
		return precondition("move", destDir, "destination is not a directory")
	}

	ok, err := t.Exists(source)
	if err != nil {
		return err
	}
	if !ok {
		return precondition("move", source, "source does not exist")
	}

	return t.Rename(source, joinPath(destDir, path.Base(trimSlash(source))))
}

// IsEmpty reports whether the directory p has no entries besides . and ..,
// or, when p is a file, whether its size is zero.
func (t *Tree) IsEmpty(p string) (bool, error) {
	if t.IsDir(p) {
		entries, err := t.List(p, true)
		if err != nil {
			return false, err
		}
		return len(entries) == 0, nil
	}

	if err := t.caps.require("empty", p, "SIZE"); err != nil {
		return false, err
	}
	n, err := t.exec.Size(p)
	if err != nil {
		return false, classify("empty", p, err)
	}
	return n == 0, nil
}

func trimSlash(p string) string {
	if len(p) > 1 {
		return strings.TrimRight(p, separator)
	}
	return p
}
