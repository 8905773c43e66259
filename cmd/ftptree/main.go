// Command ftptree runs directory tree operations against an FTP server.
//
// Usage:
//
//	ftptree [flags] <command> [arguments]
//
// Connection settings come from a TOML file (-config) and can be overridden
// with flags. Run "ftptree help" for the list of commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/gonzalop/ftptree"
	"github.com/gonzalop/ftptree/ftp"
	"github.com/gonzalop/ftptree/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ftptree", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "path to a TOML config file")
		addr       = fs.String("addr", "", "server address, host:port")
		user       = fs.String("user", "", "login name (default anonymous)")
		password   = fs.String("password", "", "login password")
		recursion  = fs.String("recursion", "", "recursive listing strategy: auto, server or client")
		sessions   = fs.Int("sessions", 0, "connections used by du")
		verbose    = fs.Bool("v", false, "log FTP commands")
	)
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		usage(fs)
		return 2
	}

	name, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if name == "help" {
		usage(fs)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "ftptree: unknown command %q\n", name)
		usage(fs)
		return 2
	}

	cfg, err := loadConfig(*configPath, overrides{
		addr:      *addr,
		user:      *user,
		password:  *password,
		recursion: *recursion,
		sessions:  *sessions,
		verbose:   *verbose,
	})
	if err != nil {
		fmt.Fprintf(stderr, "ftptree: %v\n", err)
		return 1
	}

	level, _ := cfg.Level()
	logger := newLogger(stderr, level)

	a := &app{cfg: cfg, logger: logger, out: stdout, dial: dialer(cfg, logger)}
	defer a.close()

	if err := cmd.run(ctx, a, cmdArgs); err != nil {
		var uerr usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(stderr, "usage: ftptree %s %s\n", name, cmd.usage)
			return 2
		}
		logger.Error(name+" failed", "error", err)
		return 1
	}
	return 0
}

type overrides struct {
	addr, user, password, recursion string
	sessions                        int
	verbose                         bool
}

// loadConfig reads the config file, if any, and applies the command line
// on top of it.
func loadConfig(path string, o overrides) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if o.addr != "" {
		cfg.Address = o.addr
	}
	if o.user != "" {
		cfg.User = o.user
	}
	if o.password != "" {
		cfg.Password = o.password
	}
	if o.recursion != "" {
		cfg.Recursion = o.recursion
	}
	if o.sessions > 0 {
		cfg.Sessions = o.sessions
	}
	if o.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

// session is the part of *ftp.Client the commands use.
type session interface {
	ftptree.Executor
	Syst() (string, error)
	SiteHelp(command string) ([]string, error)
	Quit() error
}

func dialer(cfg *config.Config, logger *slog.Logger) func() (session, error) {
	return func() (session, error) {
		c, err := ftp.Dial(cfg.Address, cfg.ClientOptions(logger)...)
		if err != nil {
			return nil, err
		}
		if err := c.Login(cfg.User, cfg.Password); err != nil {
			_ = c.Quit()
			return nil, err
		}
		logger.Debug("logged in", "addr", cfg.Address, "user", cfg.User)
		return c, nil
	}
}

// app holds the lazily opened primary session.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	dial   func() (session, error)

	sess  session
	tree  *ftptree.Tree
	extra []session
}

func (a *app) connect() (session, *ftptree.Tree, error) {
	if a.sess == nil {
		s, err := a.dial()
		if err != nil {
			return nil, nil, err
		}
		a.sess = s
		a.tree = ftptree.New(s,
			ftptree.WithLogger(a.logger),
			ftptree.WithRecursion(a.cfg.RecursionMode()))
	}
	return a.sess, a.tree, nil
}

// reconnect drops the primary session after a transport failure. The next
// call to connect dials again with a fresh capability set.
func (a *app) reconnect() {
	if a.sess != nil {
		_ = a.sess.Quit()
	}
	a.sess, a.tree = nil, nil
}

func (a *app) close() {
	for _, s := range a.extra {
		_ = s.Quit()
	}
	a.extra = nil
	a.reconnect()
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: ftptree [flags] <command> [arguments]")
	fmt.Fprintln(w, "\ncommands:")
	for _, name := range commandNames() {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}
