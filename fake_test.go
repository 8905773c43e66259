package ftptree

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"
)

// replyErr is a negative server reply.
type replyErr struct {
	code int
	msg  string
}

func (e *replyErr) Error() string  { return fmt.Sprintf("%d %s", e.code, e.msg) }
func (e *replyErr) ReplyCode() int { return e.code }

func rejected(msg string) error { return &replyErr{code: 550, msg: msg} }

var errConnReset = errors.New("read tcp: connection reset by peer")

// fakeServer is an in-memory Executor. It keeps a tree of directories and
// files and records every call as the FTP command it stands for.
type fakeServer struct {
	cwd   string
	dirs  map[string]bool
	files map[string]int64

	feats    map[string]string
	featsErr error

	// fail injects an error for an exact command line, e.g. "RMD /a".
	fail map[string]error

	// ignoreRecursive makes LIST -R answer like a plain LIST.
	ignoreRecursive bool
	// rejectRecursive makes LIST -R fail with a negative reply.
	rejectRecursive bool
	// emptyNLST550 answers NLST of an empty directory with 550.
	emptyNLST550 bool
	// dots adds "." and ".." to every LIST reply.
	dots bool

	calls []string
}

func newFakeServer(feats ...string) *fakeServer {
	f := &fakeServer{
		cwd:   "/",
		dirs:  map[string]bool{"/": true},
		files: map[string]int64{},
		feats: map[string]string{},
		fail:  map[string]error{},
	}
	for _, name := range feats {
		f.feats[name] = ""
	}
	return f
}

func (f *fakeServer) dir(p string) *fakeServer {
	for d := p; d != "/"; d = path.Dir(d) {
		f.dirs[d] = true
	}
	return f
}

func (f *fakeServer) file(p string, size int64) *fakeServer {
	f.dir(path.Dir(p))
	f.files[p] = size
	return f
}

func (f *fakeServer) abs(p string) string {
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	return path.Clean(path.Join(f.cwd, p))
}

func (f *fakeServer) do(line string) error {
	f.calls = append(f.calls, line)
	return f.fail[line]
}

// children returns the sorted base names directly below dir.
func (f *fakeServer) children(dir string) []string {
	var names []string
	for d := range f.dirs {
		if d != "/" && path.Dir(d) == dir {
			names = append(names, path.Base(d))
		}
	}
	for p := range f.files {
		if path.Dir(p) == dir {
			names = append(names, path.Base(p))
		}
	}
	slices.Sort(names)
	return names
}

// mutations returns the recorded calls that change the tree.
func (f *fakeServer) mutations() []string {
	var out []string
	for _, c := range f.calls {
		verb, _, _ := strings.Cut(c, " ")
		switch verb {
		case "MKD", "RMD", "DELE", "RNFR":
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeServer) count(verb string) int {
	n := 0
	for _, c := range f.calls {
		if v, _, _ := strings.Cut(c, " "); v == verb {
			n++
		}
	}
	return n
}

func (f *fakeServer) NameList(p string) ([]string, error) {
	if err := f.do("NLST " + p); err != nil {
		return nil, err
	}
	dir := f.abs(p)
	if !f.dirs[dir] {
		return nil, rejected("No such directory")
	}
	names := f.children(dir)
	if len(names) == 0 && f.emptyNLST550 {
		return nil, rejected("No files found")
	}
	return names, nil
}

func (f *fakeServer) RawList(p string, recursive bool) ([]string, error) {
	line := "LIST " + p
	if recursive {
		line = "LIST -R " + p
	}
	if err := f.do(line); err != nil {
		return nil, err
	}
	if recursive && f.rejectRecursive {
		return nil, &replyErr{code: 501, msg: "Unknown option -R"}
	}

	dir := f.abs(p)
	if !f.dirs[dir] {
		return nil, rejected("No such directory")
	}

	if !recursive || f.ignoreRecursive {
		return f.listing(dir), nil
	}

	var lines []string
	var walk func(d string)
	walk = func(d string) {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, d+":")
		lines = append(lines, f.listing(d)...)
		for _, name := range f.children(d) {
			if child := path.Join(d, name); f.dirs[child] {
				walk(child)
			}
		}
	}
	walk(dir)
	return lines, nil
}

func (f *fakeServer) listing(dir string) []string {
	names := f.children(dir)
	lines := []string{fmt.Sprintf("total %d", len(names))}
	if f.dots {
		lines = append(lines,
			"drwxr-xr-x 2 ftp ftp 4096 Jan 01 00:00 .",
			"drwxr-xr-x 2 ftp ftp 4096 Jan 01 00:00 ..")
	}
	for _, name := range names {
		p := path.Join(dir, name)
		if f.dirs[p] {
			lines = append(lines, fmt.Sprintf("drwxr-xr-x 2 ftp ftp 4096 Jan 01 00:00 %s", name))
		} else {
			lines = append(lines, fmt.Sprintf("-rw-r--r-- 1 ftp ftp %d Jan 01 00:00 %s", f.files[p], name))
		}
	}
	return lines
}

func (f *fakeServer) ChangeDir(p string) error {
	if err := f.do("CWD " + p); err != nil {
		return err
	}
	dir := f.abs(p)
	if !f.dirs[dir] {
		return rejected("Failed to change directory")
	}
	f.cwd = dir
	return nil
}

func (f *fakeServer) CurrentDir() (string, error) {
	if err := f.do("PWD"); err != nil {
		return "", err
	}
	return f.cwd, nil
}

func (f *fakeServer) MakeDir(p string) error {
	if err := f.do("MKD " + p); err != nil {
		return err
	}
	dir := f.abs(p)
	if _, isFile := f.files[dir]; isFile || f.dirs[dir] {
		return rejected("File exists")
	}
	if !f.dirs[path.Dir(dir)] {
		return rejected("No such directory")
	}
	f.dirs[dir] = true
	return nil
}

func (f *fakeServer) RemoveDir(p string) error {
	if err := f.do("RMD " + p); err != nil {
		return err
	}
	dir := f.abs(p)
	if !f.dirs[dir] || dir == "/" {
		return rejected("No such directory")
	}
	if len(f.children(dir)) > 0 {
		return rejected("Directory not empty")
	}
	delete(f.dirs, dir)
	return nil
}

func (f *fakeServer) Delete(p string) error {
	if err := f.do("DELE " + p); err != nil {
		return err
	}
	file := f.abs(p)
	if _, ok := f.files[file]; !ok {
		return rejected("No such file")
	}
	delete(f.files, file)
	return nil
}

func (f *fakeServer) Rename(from, to string) error {
	if err := f.do("RNFR " + from); err != nil {
		return err
	}
	src, dst := f.abs(from), f.abs(to)
	if size, ok := f.files[src]; ok {
		delete(f.files, src)
		f.files[dst] = size
		return nil
	}
	if !f.dirs[src] {
		return rejected("No such file or directory")
	}
	var moved []string
	for d := range f.dirs {
		if d == src || strings.HasPrefix(d, src+"/") {
			moved = append(moved, d)
		}
	}
	for _, d := range moved {
		delete(f.dirs, d)
		f.dirs[dst+strings.TrimPrefix(d, src)] = true
	}

	moved = moved[:0]
	for p := range f.files {
		if strings.HasPrefix(p, src+"/") {
			moved = append(moved, p)
		}
	}
	for _, p := range moved {
		size := f.files[p]
		delete(f.files, p)
		f.files[dst+strings.TrimPrefix(p, src)] = size
	}
	return nil
}

func (f *fakeServer) Size(p string) (int64, error) {
	if err := f.do("SIZE " + p); err != nil {
		return 0, err
	}
	size, ok := f.files[f.abs(p)]
	if !ok {
		return 0, rejected("Could not get file size")
	}
	return size, nil
}

func (f *fakeServer) ModTime(p string) (time.Time, error) {
	if err := f.do("MDTM " + p); err != nil {
		return time.Time{}, err
	}
	if _, ok := f.files[f.abs(p)]; !ok {
		return time.Time{}, rejected("Could not get modification time")
	}
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), nil
}

func (f *fakeServer) Features() (map[string]string, error) {
	if err := f.do("FEAT"); err != nil {
		return nil, err
	}
	if f.featsErr != nil {
		return nil, f.featsErr
	}
	return f.feats, nil
}
