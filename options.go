package praxisbridge

import (
	"io/fs"
	"log/slog"
)

// config collects everything New needs. Zero value plus defaults gives a
// working bridge with the embedded asset bundle and no history.
type config struct {
	assets   fs.FS
	packages []string
	observer Observer
	history  HistoryStore
	foreign  ForeignHandler
	logger   *slog.Logger
}

// Option configures New.
type Option func(*config)

// WithAssets replaces the embedded interpreter asset bundle. The file system
// must contain bootstrap.star at its root; shims/*.star and packages/*.star
// are optional.
func WithAssets(assets fs.FS) Option {
	return func(c *config) { c.assets = assets }
}

// WithPackages names optional packages to install during initialization.
// A package that fails to install degrades the capability report; it does
// not fail construction.
func WithPackages(names ...string) Option {
	return func(c *config) { c.packages = append(c.packages, names...) }
}

// WithObserver registers an observer for lifecycle callbacks. Combine
// several with NewCompositeObserver.
func WithObserver(obs Observer) Option {
	return func(c *config) { c.observer = obs }
}

// WithHistory records execution history in the given store and exposes it
// through Bridge.History.
func WithHistory(store HistoryStore) Option {
	return func(c *config) { c.history = store }
}

// WithForeignHandler auto-answers foreign calls (device reads, user
// prompts). Without a handler the application must answer them itself via
// Controller.RespondDeviceRead / RespondUserPrompt.
func WithForeignHandler(h ForeignHandler) Option {
	return func(c *config) { c.foreign = h }
}

// WithLogger sets the logger for the bridge's components. Defaults to
// slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *config) { c.logger = log }
}
