package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ringtap/ringtap/internal/capture"
	"github.com/ringtap/ringtap/internal/xlog"
)

// loadConfig reads a YAML module-parameter file, falling back to
// capture.DefaultConfig when path is empty (spec.md §6 "Module
// parameters").
func loadConfig(path string) (capture.Config, error) {
	cfg := capture.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// session bundles the pieces every subcommand assembles: the config, a
// logger, and a runtime. The socket a command operates on is returned by
// bind, not stored here.
type session struct {
	cfg capture.Config
	log *zap.SugaredLogger
	rt  *capture.Runtime
}

func newSession(configPath string) (*session, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, _, err := xlog.Init(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return &session{cfg: cfg, log: log, rt: capture.NewRuntime(cfg, log)}, nil
}

// bind resolves device through netlink and binds a fresh ring socket named
// name to it, registering it as an unclustered ring on the session's
// runtime.
func (s *session) bind(ctx context.Context, name, device string) (*capture.Socket, error) {
	sock, err := capture.Bind(ctx, s.cfg, name, device, capture.NetlinkResolver{})
	if err != nil {
		return nil, err
	}
	s.rt.AddRing(sock)
	return sock, nil
}

// captureFor runs the socket's device through ListenAndDispatch for
// duration (or until interrupted), then returns. duration <= 0 means
// "don't capture, just report status" -- used by commands that only
// mutate socket options and want an immediate status snapshot.
func (s *session) captureFor(ctx context.Context, dev capture.Device, duration time.Duration) {
	if duration <= 0 {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	s.log.Infow("capturing", "device", dev.Name, "duration", duration)
	if err := capture.ListenAndDispatch(runCtx, s.rt, dev); err != nil && runCtx.Err() == nil {
		s.log.Warnw("capture loop ended", "error", err)
	}
}

func addConfigFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVarP(dest, "config", "c", "", "Path to a YAML module-parameter file")
}

func addDurationFlag(cmd *cobra.Command, dest *time.Duration) {
	cmd.Flags().DurationVarP(dest, "duration", "d", 0, "How long to capture before reporting status (0 = report immediately)")
}

func fail(err error) {
	fmt.Printf("ERROR: %v\n", err)
	os.Exit(1)
}
