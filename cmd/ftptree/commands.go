package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/gonzalop/ftptree"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

// usageError makes run print the usage line of the command.
type usageError struct{}

func (usageError) Error() string { return "invalid arguments" }

var commands = map[string]command{
	"ls":       {"[-a] [-R] [-l] [dir]", cmdList},
	"names":    {"[-a] [dir]", cmdNames},
	"files":    {"[dir]", cmdFiles},
	"dirs":     {"[dir]", cmdDirs},
	"count":    {"[-a] [-R] [dir]", cmdCount},
	"du":       {"dir", cmdDirSize},
	"mkdir":    {"path", cmdMkdirAll},
	"rm":       {"path", cmdRemoveAll},
	"rmfile":   {"path", cmdRemoveFile},
	"mv":       {"source destdir", cmdMove},
	"rename":   {"from to", cmdRename},
	"exists":   {"path", cmdExists},
	"isdir":    {"path", cmdIsDir},
	"empty":    {"path", cmdIsEmpty},
	"size":     {"file", cmdSize},
	"mtime":    {"file", cmdModTime},
	"feat":     {"", cmdFeatures},
	"syst":     {"", cmdSyst},
	"sitehelp": {"[command]", cmdSiteHelp},
	"watch":    {"(runs the [[watch]] entries of the config)", cmdWatch},
}

func commandNames() []string {
	names := make([]string, 0, len(commands)+1)
	for name := range commands {
		names = append(names, name)
	}
	names = append(names, "help")
	sort.Strings(names)
	return names
}

// listFlags parses the flags shared by ls, names and count. At most one
// positional argument, the directory, is allowed.
type listFlags struct {
	all, recursive, long bool
	dir                  string
}

func parseListFlags(name string, args []string, withRecursive, withLong bool) (listFlags, error) {
	var lf listFlags
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&lf.all, "a", false, "include . and ..")
	if withRecursive {
		fs.BoolVar(&lf.recursive, "R", false, "recurse into subdirectories")
	}
	if withLong {
		fs.BoolVar(&lf.long, "l", false, "long format")
	}
	if err := fs.Parse(args); err != nil || fs.NArg() > 1 {
		return lf, usageError{}
	}
	lf.dir = fs.Arg(0)
	return lf, nil
}

func cmdList(_ context.Context, a *app, args []string) error {
	lf, err := parseListFlags("ls", args, true, true)
	if err != nil {
		return err
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}

	var entries []*ftptree.Entry
	if lf.recursive {
		entries, err = tree.ListRecursive(lf.dir, !lf.all)
	} else {
		entries, err = tree.List(lf.dir, !lf.all)
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		if !lf.long {
			fmt.Fprintln(a.out, e.Path)
			continue
		}
		line := fmt.Sprintf("%s %4s %12d %s %2s %5s %s", e.Permissions, e.Kind, e.Size, e.Month, e.Day, e.Time, e.Path)
		if e.Target != "" {
			line += " -> " + e.Target
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func cmdNames(_ context.Context, a *app, args []string) error {
	lf, err := parseListFlags("names", args, false, false)
	if err != nil {
		return err
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	names, err := tree.Names(lf.dir, !lf.all)
	if err != nil {
		return err
	}
	return printLines(a.out, names)
}

func cmdFiles(_ context.Context, a *app, args []string) error {
	return filterCommand(a, args, (*ftptree.Tree).Files)
}

func cmdDirs(_ context.Context, a *app, args []string) error {
	return filterCommand(a, args, (*ftptree.Tree).Dirs)
}

func filterCommand(a *app, args []string, list func(*ftptree.Tree, string) ([]string, error)) error {
	if len(args) > 1 {
		return usageError{}
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	names, err := list(tree, optional(args))
	if err != nil {
		return err
	}
	return printLines(a.out, names)
}

func cmdCount(_ context.Context, a *app, args []string) error {
	lf, err := parseListFlags("count", args, true, false)
	if err != nil {
		return err
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	n, err := tree.Count(lf.dir, lf.recursive, !lf.all)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, n)
	return nil
}

func cmdDirSize(ctx context.Context, a *app, args []string) error {
	dir, err := oneArg(args)
	if err != nil {
		return err
	}
	sess, tree, err := a.connect()
	if err != nil {
		return err
	}

	if a.cfg.Sessions <= 1 {
		size, err := tree.DirSize(dir)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, size)
		return nil
	}

	execs := []ftptree.Executor{sess}
	for len(a.extra) < a.cfg.Sessions-1 {
		s, err := a.dial()
		if err != nil {
			return fmt.Errorf("opening session %d: %w", len(a.extra)+2, err)
		}
		a.extra = append(a.extra, s)
	}
	for _, s := range a.extra {
		execs = append(execs, s)
	}

	start := time.Now()
	size, err := ftptree.DirSizeParallel(ctx, tree, dir, execs)
	if err != nil {
		return err
	}
	a.logger.Debug("dirsize done", "path", dir, "sessions", len(execs), "elapsed", time.Since(start))
	fmt.Fprintln(a.out, size)
	return nil
}

func cmdMkdirAll(_ context.Context, a *app, args []string) error {
	p, err := oneArg(args)
	if err != nil {
		return err
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	j, err := tree.MkdirAll(p)
	a.logJournal(j)
	return err
}

func cmdRemoveAll(_ context.Context, a *app, args []string) error {
	p, err := oneArg(args)
	if err != nil {
		return err
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	j, err := tree.RemoveAll(p)
	a.logJournal(j)
	return err
}

// logJournal reports what a multi-step operation changed, which matters
// most when it failed half way.
func (a *app) logJournal(j *ftptree.Journal) {
	if j == nil {
		return
	}
	for _, s := range j.Steps {
		if s.Err != nil {
			a.logger.Warn("step failed", "op", s.Op, "path", s.Path, "error", s.Err)
			continue
		}
		a.logger.Info("step applied", "op", s.Op, "path", s.Path)
	}
}

func cmdRemoveFile(_ context.Context, a *app, args []string) error {
	return pathCommand(a, args, (*ftptree.Tree).RemoveFile)
}

func cmdMove(_ context.Context, a *app, args []string) error {
	return twoPathCommand(a, args, (*ftptree.Tree).Move)
}

func cmdRename(_ context.Context, a *app, args []string) error {
	return twoPathCommand(a, args, (*ftptree.Tree).Rename)
}

func pathCommand(a *app, args []string, op func(*ftptree.Tree, string) error) error {
	p, err := oneArg(args)
	if err != nil {
		return err
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	return op(tree, p)
}

func twoPathCommand(a *app, args []string, op func(*ftptree.Tree, string, string) error) error {
	if len(args) != 2 {
		return usageError{}
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	return op(tree, args[0], args[1])
}

func cmdExists(_ context.Context, a *app, args []string) error {
	return boolCommand(a, args, (*ftptree.Tree).Exists)
}

func cmdIsEmpty(_ context.Context, a *app, args []string) error {
	return boolCommand(a, args, (*ftptree.Tree).IsEmpty)
}

func cmdIsDir(_ context.Context, a *app, args []string) error {
	return boolCommand(a, args, func(t *ftptree.Tree, p string) (bool, error) {
		return t.IsDir(p), nil
	})
}

func boolCommand(a *app, args []string, query func(*ftptree.Tree, string) (bool, error)) error {
	p, err := oneArg(args)
	if err != nil {
		return err
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	ok, err := query(tree, p)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, ok)
	return nil
}

func cmdSize(_ context.Context, a *app, args []string) error {
	p, err := oneArg(args)
	if err != nil {
		return err
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	n, err := tree.FileSize(p)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, n)
	return nil
}

func cmdModTime(_ context.Context, a *app, args []string) error {
	p, err := oneArg(args)
	if err != nil {
		return err
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	mt, err := tree.ModTime(p)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, mt.Format(time.RFC3339))
	return nil
}

func cmdFeatures(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return usageError{}
	}
	_, tree, err := a.connect()
	if err != nil {
		return err
	}
	names, err := tree.Features()
	if err != nil {
		return err
	}
	caps := tree.Capabilities()
	for _, name := range names {
		params, _, err := caps.Params(name)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, strings.TrimSpace(name+" "+params))
	}
	return nil
}

func cmdSyst(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return usageError{}
	}
	sess, _, err := a.connect()
	if err != nil {
		return err
	}
	syst, err := sess.Syst()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, syst)
	return nil
}

func cmdSiteHelp(_ context.Context, a *app, args []string) error {
	if len(args) > 1 {
		return usageError{}
	}
	sess, _, err := a.connect()
	if err != nil {
		return err
	}
	lines, err := sess.SiteHelp(optional(args))
	if err != nil {
		return err
	}
	return printLines(a.out, lines)
}

func oneArg(args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", usageError{}
	}
	return args[0], nil
}

func optional(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
