package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/config"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/identity"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/logging"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/profileclient"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/session"
)

type appOptions struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	verbose bool
	// store overrides the session file; tests use a memory store.
	store identity.Store
}

// app wires one identity client, profile client and session owner.
type app struct {
	cfg      *config.ClientConfig
	identity *identity.Client
	profiles *profileclient.Client
	owner    *session.Owner
	registry *prometheus.Registry
	log      *slog.Logger

	in     *bufio.Reader
	stdout io.Writer
}

func newApp(ctx context.Context, opts appOptions) *app {
	cfg := config.LoadClient()

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := logging.New(opts.stderr, level)

	store := opts.store
	if store == nil {
		store = identity.NewFileStore(cfg.SessionFile)
	}

	idc := identity.New(identity.Config{
		BaseURL: cfg.PortalURL,
		Store:   store,
		Logger:  log,
	})
	profiles := profileclient.New(cfg.PortalURL, idc, nil)

	reg := prometheus.NewRegistry()
	owner := session.New(idc, profiles, session.Options{
		SafetyValve:  cfg.SafetyValve,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       log,
		Metrics:      metrics.NewCollector(reg),
	})
	owner.Initialize(ctx)

	return &app{
		cfg:      cfg,
		identity: idc,
		profiles: profiles,
		owner:    owner,
		registry: reg,
		log:      log,
		in:       bufio.NewReader(opts.stdin),
		stdout:   opts.stdout,
	}
}

// ready blocks until the bootstrap has settled.
func (a *app) ready(ctx context.Context) error {
	if err := a.owner.WaitReady(ctx); err != nil {
		return fmt.Errorf("auth state not ready: %w", err)
	}
	return nil
}

func (a *app) Close() {
	a.owner.Close()
	a.identity.Close()
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

// prompt reads one line when the flag value is empty.
func (a *app) prompt(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(a.stdout, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}
