package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/marvel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPageSize is the number of characters requested per page.
const DefaultPageSize = 20

// PageFetcher loads one page of characters.
type PageFetcher interface {
	// FetchPage returns up to limit characters starting at offset.
	FetchPage(ctx context.Context, offset, limit int) (*marvel.Page, error)
}

// Config holds list controller configuration.
type Config struct {
	// PageSize is the limit sent with every request (1..marvel.MaxPageLimit).
	PageSize int

	// EndThreshold is how close to the content end a scroll position must be
	// to trigger the next page. Same units as ScrollPosition.
	EndThreshold float64

	// LoopBuffer is the task queue size of the controller's loop.
	LoopBuffer int
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:     DefaultPageSize,
		EndThreshold: 0,
		LoopBuffer:   64,
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithListener sets the change event listener.
func WithListener(l Listener) Option {
	return func(c *Controller) { c.listener = l }
}

// WithNavigator sets the collaborator that receives selected characters.
func WithNavigator(n Navigator) Option {
	return func(c *Controller) { c.navigator = n }
}

// WithLogger overrides the controller logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	Items   []marvel.Character
	Total   int
	Loading bool
	HasMore bool
	Loaded  bool
}

// Controller drives the paged character list. State lives on a Loop;
// exported methods are safe to call from any goroutine except a Listener callback.
type Controller struct {
	fetcher   PageFetcher
	config    Config
	listener  Listener
	navigator Navigator
	logger    zerolog.Logger

	loop  *Loop
	state *State

	// loop-confined
	generation     uint64
	failed         bool
	pendingRefresh bool
	cancelFetch    context.CancelFunc

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewController creates a controller with an empty state.
func NewController(fetcher PageFetcher, cfg Config, opts ...Option) (*Controller, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize < 0 || cfg.PageSize > marvel.MaxPageLimit {
		return nil, fmt.Errorf("page_size must be between 1 and %d (got %d)", marvel.MaxPageLimit, cfg.PageSize)
	}
	if cfg.LoopBuffer <= 0 {
		cfg.LoopBuffer = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		fetcher: fetcher,
		config:  cfg,
		logger:  log.With().Str("component", "list-controller").Logger(),
		loop:    NewLoop(cfg.LoopBuffer),
		state:   NewState(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LoadInitial fetches the first page.
// It returns ErrAlreadyLoading while a fetch is outstanding and ErrAlreadyLoaded
// once characters are in place; use Refresh to start over.
func (c *Controller) LoadInitial() error {
	var err error
	if callErr := c.loop.Call(func() { err = c.loadInitial() }); callErr != nil {
		return callErr
	}
	return err
}

func (c *Controller) loadInitial() error {
	if c.state.IsLoading() {
		c.logger.Debug().Msg("Initial load ignored: fetch in flight")
		return ErrAlreadyLoading
	}
	if c.state.Loaded() && c.state.Count() > 0 {
		c.logger.Debug().Int("count", c.state.Count()).Msg("Initial load ignored: already loaded")
		return ErrAlreadyLoaded
	}
	c.startFetch(0, true)
	return nil
}

// LoadNextPageIfNeeded fetches the next page when pos is at the end of the
// content, no fetch is outstanding and the server has more characters.
// It reports whether a fetch was started.
func (c *Controller) LoadNextPageIfNeeded(pos ScrollPosition) bool {
	var started bool
	if err := c.loop.Call(func() { started = c.loadNextPageIfNeeded(pos) }); err != nil {
		return false
	}
	return started
}

func (c *Controller) loadNextPageIfNeeded(pos ScrollPosition) bool {
	if !pos.AtEnd(c.config.EndThreshold) {
		return false
	}
	if c.state.IsLoading() {
		c.logger.Debug().Msg("Next page ignored: fetch in flight")
		return false
	}
	if !c.state.HasMore() {
		return false
	}
	c.startFetch(c.state.NextOffset(), false)
	return true
}

// Retry repeats the request that last failed, at the same offset.
// It reports whether a fetch was started.
func (c *Controller) Retry() bool {
	var started bool
	if err := c.loop.Call(func() { started = c.retry() }); err != nil {
		return false
	}
	return started
}

func (c *Controller) retry() bool {
	if !c.failed || c.state.IsLoading() {
		return false
	}
	if c.state.Count() == 0 {
		c.startFetch(0, true)
		return true
	}
	if !c.state.HasMore() {
		return false
	}
	c.startFetch(c.state.NextOffset(), false)
	return true
}

// Refresh drops all loaded characters and fetches the first page again.
// A fetch in flight is cancelled and its result discarded; the first page is
// requested once it has returned, so fetches never overlap.
func (c *Controller) Refresh() error {
	return c.loop.Call(c.refresh)
}

func (c *Controller) refresh() {
	c.generation++
	c.failed = false
	inFlight := c.state.IsLoading()
	c.state.Reset()
	c.logger.Debug().
		Uint64("generation", c.generation).
		Bool("in_flight", inFlight).
		Msg("List reset")

	if !inFlight {
		c.startFetch(0, true)
		return
	}

	// Still loading until the cancelled fetch reports back.
	_ = c.state.BeginLoad()
	c.pendingRefresh = true
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	c.emit(Event{Kind: EventLoading, Offset: 0})
}

// SelectCharacter returns the character at index and hands it to the Navigator.
func (c *Controller) SelectCharacter(index int) (marvel.Character, error) {
	var (
		character marvel.Character
		err       error
	)
	if callErr := c.loop.Call(func() { character, err = c.state.At(index) }); callErr != nil {
		return marvel.Character{}, callErr
	}
	if err != nil {
		return marvel.Character{}, err
	}
	if c.navigator != nil {
		c.navigator.ShowCharacter(character)
	}
	return character, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	var snap Snapshot
	_ = c.loop.Call(func() {
		snap = Snapshot{
			Items:   c.state.Items(),
			Total:   c.state.Total(),
			Loading: c.state.IsLoading(),
			HasMore: c.state.HasMore(),
			Loaded:  c.state.Loaded(),
		}
	})
	return snap
}

// Close stops the controller. In-flight fetches are cancelled and their
// results dropped. Close is idempotent.
//
// Close waits for the loop, so it must not be called from a Listener or
// Navigator callback; doing so deadlocks. Hand it to another goroutine instead.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		_ = c.loop.Call(func() {
			c.generation++
			c.pendingRefresh = false
		})
		c.cancel()
		c.loop.Close()
	})
	return nil
}

// startFetch must run on the loop.
func (c *Controller) startFetch(offset int, initial bool) {
	if err := c.state.BeginLoad(); err != nil {
		return
	}
	gen := c.generation
	c.logger.Debug().
		Int("offset", offset).
		Int("limit", c.config.PageSize).
		Bool("initial", initial).
		Msg("Fetching page")
	c.emit(Event{Kind: EventLoading, Offset: offset})

	c.launch(gen, offset, initial)
}

// launch starts the fetch goroutine; the caller has already marked the state loading.
func (c *Controller) launch(gen uint64, offset int, initial bool) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelFetch = cancel
	go c.fetch(ctx, cancel, gen, offset, initial)
}

func (c *Controller) fetch(ctx context.Context, cancel context.CancelFunc, gen uint64, offset int, initial bool) {
	defer cancel()

	start := time.Now()
	page, err := c.fetcher.FetchPage(ctx, offset, c.config.PageSize)
	if err == nil {
		err = page.Validate()
	}
	elapsed := time.Since(start)

	if !c.loop.Post(func() { c.complete(gen, offset, initial, page, err, elapsed) }) {
		c.logger.Debug().Int("offset", offset).Msg("Discarding page: controller closed")
	}
}

func (c *Controller) complete(gen uint64, offset int, initial bool, page *marvel.Page, err error, elapsed time.Duration) {
	if gen != c.generation {
		c.logger.Debug().
			Int("offset", offset).
			Uint64("generation", gen).
			Msg("Discarding stale page")
		if c.pendingRefresh {
			c.pendingRefresh = false
			c.logger.Debug().Msg("Fetching first page after reset")
			c.launch(c.generation, 0, true)
		}
		return
	}

	kind := "next"
	if initial {
		kind = "initial"
	}

	if err != nil {
		c.state.FailLoad()
		c.failed = true
		pageLoadFailuresTotal.WithLabelValues(kind).Inc()
		c.logger.Warn().
			Err(err).
			Int("offset", offset).
			Int("loaded", c.state.Count()).
			Msg("Page load failed")
		c.emit(Event{Kind: EventFailed, Offset: offset, Err: err})
		return
	}

	c.failed = false
	if page.Offset != offset {
		c.logger.Warn().
			Int("requested_offset", offset).
			Int("page_offset", page.Offset).
			Msg("Server returned a different offset")
	}

	indices := c.state.ApplyPage(page)
	if len(page.Results) == 0 && c.state.HasMore() {
		c.logger.Warn().
			Int("offset", offset).
			Int("total", page.Total).
			Msg("Empty page before reaching total, stopping pagination")
		c.state.Exhaust()
	}

	pagesLoadedTotal.WithLabelValues(kind).Inc()
	pageLoadDuration.Observe(elapsed.Seconds())
	charactersLoaded.Set(float64(c.state.Count()))

	c.logger.Info().
		Int("offset", offset).
		Int("count", len(page.Results)).
		Int("loaded", c.state.Count()).
		Int("total", c.state.Total()).
		Dur("duration", elapsed).
		Msg("Page loaded")

	items := make([]marvel.Character, len(page.Results))
	copy(items, page.Results)

	event := Event{Kind: EventInserted, Offset: offset, Indices: indices, Items: items}
	if initial {
		event.Kind = EventInitial
	}
	c.emit(event)
}

func (c *Controller) emit(e Event) {
	if c.listener != nil {
		c.listener.OnChange(e)
	}
}
