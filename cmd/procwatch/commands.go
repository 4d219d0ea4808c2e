package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/procwatch/internal/config"
	"github.com/loykin/procwatch/internal/detector"
	"github.com/loykin/procwatch/internal/history"
	"github.com/loykin/procwatch/internal/server"
)

// exitError carries a process exit code through cobra without printing.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type command struct {
	out io.Writer
}

// Check runs one pass. It fails with exit code 1 only when a restart was
// attempted and failed.
func (c command) Check(ctx context.Context, f CheckFlags) error {
	s, err := newSession(f.ConfigPath, c.out, func(cfg *config.Config) {
		if f.MaxIdle > 0 {
			cfg.Target.MaxIdle = f.MaxIdle
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	r := s.mon.Run(ctx)
	if r.ExitCode != 0 {
		return exitError{code: r.ExitCode}
	}
	return nil
}

type statusView struct {
	Target      string                     `json:"target"`
	StateFile   string                     `json:"state_file"`
	Status      string                     `json:"status,omitempty"`
	LastCheck   string                     `json:"last_check,omitempty"`
	LastMessage string                     `json:"last_message,omitempty"`
	Extra       map[string]json.RawMessage `json:"extra,omitempty"`
	LaunchedPID int                        `json:"launched_pid,omitempty"`
	Alive       bool                       `json:"launched_alive"`
}

// Status prints the status file and whether the last launched child lives.
func (c command) Status(f StatusFlags) error {
	s, err := newSession(f.ConfigPath, c.out, nil)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	v := statusView{Target: s.cfg.Target.Name, StateFile: s.cfg.State.File}
	rec, err := s.mon.Recorder().Load()
	switch {
	case err == nil:
		v.Status = string(rec.Status)
		if !rec.LastCheck.IsZero() {
			v.LastCheck = rec.LastCheck.Format(time.RFC3339)
		}
		v.LastMessage = rec.LastMessage
		v.Extra = rec.Extra
	case errors.Is(err, fs.ErrNotExist):
	default:
		return err
	}

	d := detector.PIDFileDetector{PIDFile: s.cfg.Launch.PIDFile}
	if pid, _, err := d.ReadPID(); err == nil {
		v.LaunchedPID = pid
		v.Alive = detector.IsRunning(d, s.logger)
	}
	printJSON(c.out, v)
	return nil
}

// Stop terminates the target and records it as Stopped.
func (c command) Stop(ctx context.Context, f StopFlags) error {
	s, err := newSession(f.ConfigPath, c.out, nil)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	s.mon.Stop(ctx)
	return nil
}

// History prints recent passes from a queryable history backend.
func (c command) History(ctx context.Context, f HistoryFlags) error {
	s, err := newSession(f.ConfigPath, c.out, nil)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	reader, ok := s.mon.History().(history.Reader)
	if !ok {
		return errors.New("history is not enabled or its backend cannot be queried (use a sqlite or postgres dsn)")
	}
	events, err := reader.Recent(ctx, f.Limit)
	if err != nil {
		return err
	}
	if f.JSON {
		printJSON(c.out, events)
		return nil
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-14s running=%-5t %s", e.OccurredAt.Local().Format("2006-01-02 15:04:05"), e.Type, e.Record.ProcessRunning, e.Record.Reason)
		if e.Record.Message != "" {
			line += "  -> " + e.Record.Message
		}
		_, _ = fmt.Fprintln(c.out, line)
	}
	return nil
}

// Serve exposes the monitor over HTTP until SIGINT or SIGTERM.
func (c command) Serve(ctx context.Context, f ServeFlags) error {
	s, err := newSession(f.ConfigPath, c.out, func(cfg *config.Config) {
		if f.Listen != "" {
			cfg.Server.Listen = f.Listen
		}
		if f.BasePath != "" {
			cfg.Server.BasePath = f.BasePath
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	router := server.NewRouter(s.mon, s.metricsHandler(), s.cfg.Server.BasePath)
	srv := server.NewServer(s.cfg.Server.Listen, router)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("serving watchdog", "listen", s.cfg.Server.Listen, "base_path", s.cfg.Server.BasePath)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
