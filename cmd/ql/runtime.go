package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/api"
	"github.com/questlog/questlog/internal/app"
	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/dashboard"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/logging"
	"github.com/questlog/questlog/internal/schema"
)

// runtime holds what a command needs. Close releases it.
type runtime struct {
	sink   *logging.Sink
	creds  *auth.Store
	client *api.Client
	store  *db.DB
	app    *app.App

	// dashboard is set when the command serves the live view
	dashboard *dashboard.Handler
}

// openStore opens the database, the credential store and the backend
// client, without building the app.
func openStore(ctx context.Context) (*runtime, error) {
	sink, err := openSink()
	if err != nil {
		return nil, err
	}
	rt := &runtime{sink: sink}

	rt.creds = auth.NewStore(cfg.Auth.CredentialsPath, cfg.Auth.Token)
	rt.client, err = api.New(cfg.API.BaseURL, rt.creds, api.Options{
		Timeout:   cfg.API.Timeout,
		UserAgent: "ql/" + Version,
		Logger:    sink.Quiet("api"),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	rt.store, err = db.Open(cfg.Store.Path)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.store.InitSchema(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// openSink opens the configured log destination.
func openSink() (*logging.Sink, error) {
	return logging.Open(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Verbose:    verbose,
	})
}

// buildApp wires the app. notifier may be nil.
func (rt *runtime) buildApp(notifier app.Notifier) error {
	a, err := app.New(app.Options{
		Store:    rt.store,
		Remote:   rt.client,
		Auth:     rt.creds,
		Strategy: cfg.Strategy(),
		Notifier: notifier,
		Logger:   rt.sink.Quiet("sync"),
	})
	if err != nil {
		return err
	}
	rt.app = a
	return nil
}

// openApp is openStore plus buildApp with no notifier.
func openApp(ctx context.Context) (*runtime, error) {
	rt, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := rt.buildApp(nil); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
	if rt.sink != nil {
		_ = rt.sink.Close()
	}
}

// parseIDArg parses a record id from the command line.
func parseIDArg(s string) (schema.ID, error) {
	id, err := schema.ParseID(s)
	if err != nil {
		return schema.ID{}, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp runs fn with an open app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	rt, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.app)
}
