// Package app wires the timeline services together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackmichael/bluesky-timelines/internal/bluesky"
	"github.com/blackmichael/bluesky-timelines/internal/config"
	"github.com/blackmichael/bluesky-timelines/internal/domain"
	"github.com/blackmichael/bluesky-timelines/internal/embed"
	"github.com/blackmichael/bluesky-timelines/internal/graph"
	"github.com/blackmichael/bluesky-timelines/internal/language"
	"github.com/blackmichael/bluesky-timelines/internal/listfetch"
	"github.com/blackmichael/bluesky-timelines/internal/respcache"
	"github.com/blackmichael/bluesky-timelines/internal/store"
	"github.com/blackmichael/bluesky-timelines/internal/thread"
	"github.com/blackmichael/bluesky-timelines/internal/timeline"
)

// App holds the long-lived services of a running process.
type App struct {
	Client   *bluesky.Client
	Store    *store.Store
	Pipeline *timeline.Pipeline
	Registry *timeline.Registry

	threads   *respcache.Cache[[]domain.PostView]
	persister respcache.Persister
	closers   []func() error
	logger    *slog.Logger
}

// New logs in to BlueSky, opens the database and builds the pipeline. The
// caller should call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)
	logger.Info("opened database", "path", cfg.DatabasePath)

	a.persister = st
	if cfg.CacheRedisAddr != "" {
		rp, err := respcache.NewRedisPersister(ctx, cfg.CacheRedisAddr, 0)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.persister = rp
		a.closers = append(a.closers, rp.Close)
		logger.Info("persisting response caches to redis", "addr", cfg.CacheRedisAddr)
	}

	a.Client = bluesky.NewClient(bluesky.Options{PDS: cfg.BlueskyPDS})
	if err := a.Client.Login(ctx, cfg.BlueskyHandle, cfg.BlueskyAppPassword); err != nil {
		a.Close()
		return nil, fmt.Errorf("login as %s: %w", cfg.BlueskyHandle, err)
	}
	logger.Info("logged in", "handle", a.Client.Handle(), "did", a.Client.DID())

	a.threads = respcache.New[[]domain.PostView]("threads", respcache.Options{})
	if err := a.threads.Load(ctx, a.persister, logger); err != nil {
		logger.Warn("starting with an empty thread cache", "error", err)
	}

	var embedder domain.Embedder
	if cfg.ScoringEnabled() {
		embedder = embed.NewHTTPEmbedder(embed.Options{
			URL:    cfg.EmbedURL,
			APIKey: cfg.EmbedAPIKey,
			Model:  cfg.EmbedModel,
		})
	} else {
		logger.Warn("no embeddings endpoint configured; prompt timelines will fail to load")
	}

	a.Pipeline = timeline.NewPipeline(timeline.Deps{
		Source:     a.Client,
		Graph:      graph.NewCache(a.Client, logger, graph.DefaultMaxPages),
		Lists:      listfetch.NewFetcher(timeline.AuthorFeedPages(a.Client), logger, listfetch.Options{}),
		Classifier: language.MustClassifier(),
		Embedder:   embedder,
		Merger: thread.NewMerger(
			thread.NewCachedFetcher(a.Client, a.threads, bluesky.DefaultThreadHeight),
			logger, thread.Options{},
		),
		Logger: logger,
	})
	a.Registry = timeline.NewRegistry(st)

	return a, nil
}

// Actor returns the DID of the logged-in account.
func (a *App) Actor() string {
	return a.Client.DID()
}

// FlushCaches persists response caches every interval until ctx is done,
// then once more.
func (a *App) FlushCaches(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			a.saveCaches(flushCtx)
			return
		case <-ticker.C:
			a.saveCaches(ctx)
		}
	}
}

func (a *App) saveCaches(ctx context.Context) {
	if err := a.threads.Save(ctx, a.persister); err != nil {
		a.logger.Warn("failed to persist response cache", "error", err)
		return
	}
	a.logger.Debug("persisted response cache", "cache", "threads", "entries", a.threads.Len())
}

// Close releases the database and cache connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
