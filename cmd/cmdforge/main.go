// Command cmdforge is a minimal demonstration front end for the engine: it
// loads a TOML config, builds and runs an Action, and prints progress until
// done. It is not the CLI/TUI front-end spec.md's Non-goals exclude; it
// exists only to exercise the engine packages end to end, the way
// dot.go/podman-wrapper's main wires its own chroot/podman core.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/bogen85/cmdforge/action"
	"github.com/bogen85/cmdforge/config"
)

func main() {
	var cfgPath string
	var verbose bool
	flag.StringVar(&cfgPath, "config", "", "path to TOML config")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flag.Parse()

	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if cfgPath == "" {
		errorf("-config is required")
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		errorf("%v", err)
		os.Exit(1)
	}
	if cfg.Pipe == "" && term.IsTerminal(int(os.Stdout.Fd())) {
		cfg.Pipe = "<inherit>"
	}

	a, err := action.New(cfg)
	if err != nil {
		errorf("%v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		warn("interrupted, stopping in-flight commands")
		if err := a.Stop(); err != nil {
			errorf("stop: %v", err)
		}
	}()

	a.Start()
	go reportProgress(ctx, a)

	if err := a.Wait(); err != nil {
		errorf("%v", err)
		os.Exit(1)
	}
	info("all commands completed")
}

func reportProgress(ctx context.Context, a *action.Action) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			finished, total := a.Progress()
			info("progress: %d/%d", finished, total)
			if finished == total {
				return
			}
		}
	}
}

func logf(level, msg string, a ...any) {
	fmt.Fprintf(os.Stderr, "cmdforge: %s: %s\n", level, fmt.Sprintf(msg, a...))
}

func info(m string, a ...any)  { logf("info", m, a...) }
func warn(m string, a ...any)  { logf("warn", m, a...) }
func errorf(m string, a ...any) { logf("error", m, a...) }
