// Package catalog caches the checkpoints, samplers and schedulers the engine
// offers, refreshing them on a cron schedule.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Lister enumerates engine options.
type Lister interface {
	Models(ctx context.Context) ([]string, error)
	Samplers(ctx context.Context) ([]string, error)
	Schedulers(ctx context.Context) ([]string, error)
}

// Catalog is one snapshot of the engine's options.
type Catalog struct {
	Models      []string  `json:"models"`
	Samplers    []string  `json:"samplers"`
	Schedulers  []string  `json:"schedulers"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Cache keeps the last successfully fetched value of each list.
type Cache struct {
	lister  Lister
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	current Catalog
	loaded  bool

	cron *cron.Cron
}

func New(lister Lister, logger *slog.Logger) *Cache {
	return &Cache{
		lister:  lister,
		logger:  logger.With("module", "catalog"),
		timeout: 30 * time.Second,
		current: Catalog{Models: []string{}, Samplers: []string{}, Schedulers: []string{}},
	}
}

// Refresh fetches every list. A list that fails keeps its previous value;
// the failures are joined into the returned error.
func (c *Cache) Refresh(ctx context.Context) (Catalog, error) {
	var errs []error

	fetch := func(name string, list func(context.Context) ([]string, error), previous []string) []string {
		values, err := list(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list %s: %w", name, err))

			return previous
		}

		return values
	}

	c.mu.RLock()
	next := c.current
	c.mu.RUnlock()

	next.Models = fetch("models", c.lister.Models, next.Models)
	next.Samplers = fetch("samplers", c.lister.Samplers, next.Samplers)
	next.Schedulers = fetch("schedulers", c.lister.Schedulers, next.Schedulers)
	next.RefreshedAt = time.Now().UTC()

	c.mu.Lock()
	c.current = next
	c.loaded = true
	c.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		c.logger.WarnContext(ctx, "Catalog refresh incomplete", "error", err)
	} else {
		c.logger.InfoContext(ctx, "Catalog refreshed",
			"models", len(next.Models),
			"samplers", len(next.Samplers),
			"schedulers", len(next.Schedulers),
		)
	}

	return clone(next), err
}

// Get returns the cached catalog, fetching it on first use.
func (c *Cache) Get(ctx context.Context) (Catalog, error) {
	c.mu.RLock()
	current, loaded := c.current, c.loaded
	c.mu.RUnlock()

	if loaded {
		return clone(current), nil
	}

	return c.Refresh(ctx)
}

// Start refreshes on the given standard cron spec until Stop.
func (c *Cache) Start(spec string) error {
	_, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid catalog refresh schedule: %w", err)
	}

	c.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	id, err := c.cron.AddFunc(spec, c.run)
	if err != nil {
		return fmt.Errorf("failed to add catalog refresh job: %w", err)
	}

	c.logger.Info("Scheduled catalog refresh", "id", id, "schedule", spec)
	c.cron.Start()

	return nil
}

func (c *Cache) run() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, _ = c.Refresh(ctx)
}

// Stop halts the schedule and waits for a running refresh.
func (c *Cache) Stop(ctx context.Context) {
	if c.cron == nil {
		return
	}

	select {
	case <-c.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func clone(c Catalog) Catalog {
	c.Models = slices.Clone(c.Models)
	c.Samplers = slices.Clone(c.Samplers)
	c.Schedulers = slices.Clone(c.Schedulers)

	return c
}
