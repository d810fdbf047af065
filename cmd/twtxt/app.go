package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackmichael/twtxt/internal/config"
	"github.com/blackmichael/twtxt/internal/domain"
	"github.com/blackmichael/twtxt/internal/fetch"
	"github.com/blackmichael/twtxt/internal/sqlite"
	"github.com/blackmichael/twtxt/internal/twtfile"
)

// app bundles what a command needs once the config is loaded.
type app struct {
	store  *config.Store
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
}

// loadApp reads the config. With create set a missing config file is
// treated as empty so that the command can write it.
func loadApp(cmd *cobra.Command, create bool) (*app, error) {
	logger := newLogger(cmd.ErrOrStderr())

	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	var (
		store *config.Store
		err   error
	)
	if create {
		store, err = config.Open(path)
	} else {
		store, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("config loaded", "path", path)

	return &app{
		store:  store,
		cfg:    store.Config(),
		logger: logger,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}, nil
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// self is the user's own source.
func (a *app) self() domain.Source {
	return domain.Source{
		Nick: a.cfg.Twtxt.Nick,
		URL:  a.cfg.Twtxt.TwtURL,
		File: a.cfg.Twtxt.TwtFile,
	}
}

func (a *app) directory() *domain.Directory {
	return domain.NewDirectory(a.store.Following(), a.self())
}

func (a *app) twtfile() *twtfile.File {
	s := a.cfg.Twtxt
	vars := map[string]string{
		"nick":   s.Nick,
		"twturl": s.TwtURL,
	}
	return twtfile.New(s.TwtFile, twtfile.Hooks{Pre: s.PreTweetHook, Post: s.PostTweetHook}, vars, a.logger)
}

func (a *app) fetcher() *fetch.Client {
	s := a.cfg.Twtxt
	return fetch.NewClient(fetch.Options{
		Timeout:   s.Timeout,
		UserAgent: fetch.UserAgent(version, s.Nick, s.TwtURL, s.DiscloseIdentity),
	})
}

// openCache opens the feed cache, or returns nil if caching is disabled.
func (a *app) openCache(enabled bool) (*sqlite.Cache, error) {
	if !enabled {
		return nil, nil
	}
	path := a.cfg.Twtxt.CacheFile
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locate cache directory: %w", err)
		}
		path = filepath.Join(dir, "twtxt", "cache.db")
	}
	cache, err := sqlite.NewCache(path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.logger.Debug("cache opened", "path", path)
	return cache, nil
}
