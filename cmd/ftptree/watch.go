package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gonzalop/ftptree"
	"github.com/gonzalop/ftptree/internal/config"
)

var errNoWatches = errors.New("no [[watch]] entries in the config")

// cmdWatch logs the size and entry count of every configured directory on
// its cron schedule until ctx is cancelled.
func cmdWatch(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return usageError{}
	}
	if len(a.cfg.Watch) == 0 {
		return errNoWatches
	}

	logger := cronLogger{a.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	// All jobs share the primary session, which takes one command at a time.
	var mu sync.Mutex
	for _, w := range a.cfg.Watch {
		if _, err := c.AddFunc(w.Cron, func() {
			mu.Lock()
			defer mu.Unlock()
			a.survey(w)
		}); err != nil {
			return err
		}
		a.logger.Info("scheduled", "watch", w.Name, "cron", w.Cron, "path", w.Path)
	}

	c.Start()
	<-ctx.Done()

	a.logger.Info("shutting down")
	<-c.Stop().Done()
	return nil
}

// survey runs one watch. A transport failure drops the session so the next
// run reconnects.
func (a *app) survey(w config.Watch) {
	logger := a.logger.With("watch", w.Name, "path", w.Path)

	_, tree, err := a.connect()
	if err != nil {
		logger.Error("connect failed", "error", err)
		return
	}

	start := time.Now()
	size, err := tree.DirSize(w.Path)
	var n int
	if err == nil {
		n, err = tree.Count(w.Path, true, true)
	}
	if err != nil {
		if ftptree.IsTransport(err) {
			a.reconnect()
		}
		logger.Error("survey failed", "error", err)
		return
	}

	logger.Info("surveyed", "bytes", size, "entries", n, "elapsed", time.Since(start))
}

// cronLogger routes the scheduler's messages to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
