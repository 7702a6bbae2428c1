package main

import (
	"context"
	"fmt"
	"time"

	"cctvbot/internal/app"
	"cctvbot/internal/config"
	"cctvbot/internal/monitor"
	"cctvbot/internal/storage"
	"cctvbot/internal/transport/console"
	logx "cctvbot/pkg/logx"
)

// session is a short-lived view of the store for admin commands. It never
// starts the polling loop or any transport.
type session struct {
	cfg   *config.Config
	store storage.Store
	mon   *monitor.Monitor
	log   logx.Logger
}

// openSession parses the config without requiring transport credentials, so
// admin commands work on a host that only has the database.
func openSession(cfgPath string) (*session, error) {
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return nil, err
	}
	log := logx.NewConsole("warn")
	st, err := app.OpenStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	mc, err := app.MonitorConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	mon := monitor.New(mc, monitor.Options{Store: st, Sender: console.New(log, false), Log: log})
	return &session{cfg: cfg, store: st, mon: mon, log: log}, nil
}

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.mon.Close(ctx)
	return s.store.Close()
}

func (s *session) audit(ctx context.Context, action, target string, ok bool, detail string) {
	err := s.store.AppendAudit(ctx, storage.AuditEntry{
		At:     time.Now(),
		Actor:  "cli",
		Action: action,
		Target: target,
		OK:     ok,
		Detail: detail,
	})
	if err != nil {
		s.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}

func withSession(cfgPath string, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(cfgPath)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, s)
}
