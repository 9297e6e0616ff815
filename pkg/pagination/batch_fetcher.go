package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/marvel"
	"github.com/rs/zerolog/log"
)

// BatchConfig holds batch fetcher configuration
type BatchConfig struct {
	// MaxConcurrency is the maximum number of parallel requests.
	// Each request counts against the daily Marvel quota, keep it small.
	MaxConcurrency int
	// PageSize is the limit per request (max marvel.MaxPageLimit)
	PageSize int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxItems caps the number of characters fetched (0 = everything)
	MaxItems int
}

// DefaultBatchConfig returns safe defaults for the Marvel API.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrency: 4,
		PageSize:       marvel.MaxPageLimit,
		Timeout:        15 * time.Second,
	}
}

// pageResult represents the result of fetching a single page
type pageResult struct {
	Offset int
	Page   *marvel.Page
	Error  error
}

// BatchFetcher fetches every page of the character list in parallel.
type BatchFetcher struct {
	fetcher PageFetcher
	config  BatchConfig
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config BatchConfig) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.PageSize <= 0 || config.PageSize > marvel.MaxPageLimit {
		config.PageSize = marvel.MaxPageLimit
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches the first page to learn the total, then the remaining
// offsets with a worker pool. Characters are returned in server order.
// Gaps left by short pages are fetched again. On a page error, or when the
// server runs dry before total, the contiguous prefix is returned with an error.
func (bf *BatchFetcher) FetchAll(ctx context.Context) ([]marvel.Character, error) {
	start := time.Now()

	first, err := bf.fetchPage(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	total := first.Total
	if bf.config.MaxItems > 0 && bf.config.MaxItems < total {
		total = bf.config.MaxItems
	}

	var offsets []int
	for offset := len(first.Results); offset < total; offset += bf.config.PageSize {
		offsets = append(offsets, offset)
	}

	log.Info().
		Int("total", first.Total).
		Int("pages", len(offsets)+1).
		Msg("Starting parallel page fetch")

	pages := map[int]*marvel.Page{0: first}
	if len(first.Results) == 0 {
		if total > 0 {
			return nil, fmt.Errorf("%w: empty first page of %d", ErrIncomplete, total)
		}
		return nil, nil
	}

	characters, err := bf.fetchOffsets(ctx, offsets, pages, total)
	if err == nil && len(characters) < total {
		characters, err = bf.fillGaps(ctx, pages, total)
	}
	if err != nil {
		return characters, fmt.Errorf("partial data (%d/%d characters): %w", len(characters), total, err)
	}

	log.Info().
		Int("characters", len(characters)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return characters, nil
}

// fetchOffsets runs the worker pool over offsets and stores the pages it gets.
// It returns the contiguous characters collected and the first page error.
func (bf *BatchFetcher) fetchOffsets(ctx context.Context, offsets []int, pages map[int]*marvel.Page, total int) ([]marvel.Character, error) {
	if len(offsets) == 0 {
		return bf.collect(pages, total), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan int, len(offsets))
	for _, offset := range offsets {
		queue <- offset
	}
	close(queue)

	results := make(chan pageResult, len(offsets))

	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(ctx, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for result := range results {
		if result.Error != nil {
			log.Warn().
				Err(result.Error).
				Int("offset", result.Offset).
				Msg("Page fetch failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("offset %d: %w", result.Offset, result.Error)
				cancel()
			}
			continue
		}

		pages[result.Offset] = result.Page

		if len(pages)%10 == 0 {
			log.Info().
				Int("fetched", len(pages)).
				Int("pages", len(offsets)+1).
				Msg("Fetch progress")
		}
	}

	return bf.collect(pages, total), firstErr
}

// fillGaps fetches sequentially from the end of the contiguous prefix until
// total is reached. Short pages leave such gaps behind.
func (bf *BatchFetcher) fillGaps(ctx context.Context, pages map[int]*marvel.Page, total int) ([]marvel.Character, error) {
	characters := bf.collect(pages, total)
	for len(characters) < total {
		offset := len(characters)
		log.Debug().Int("offset", offset).Msg("Filling gap after short page")

		page, err := bf.fetchPage(ctx, offset)
		if err != nil {
			return characters, fmt.Errorf("offset %d: %w", offset, err)
		}
		if len(page.Results) == 0 {
			return characters, fmt.Errorf("%w: empty page at offset %d", ErrIncomplete, offset)
		}
		pages[offset] = page
		characters = bf.collect(pages, total)
	}
	return characters, nil
}

func (bf *BatchFetcher) fetchPage(ctx context.Context, offset int) (*marvel.Page, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	page, err := bf.fetcher.FetchPage(pageCtx, offset, bf.config.PageSize)
	if err != nil {
		return nil, err
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return page, nil
}

// collect stitches pages together in offset order, stopping at the first gap.
// Pages overlapping the prefix contribute only their tail.
func (bf *BatchFetcher) collect(pages map[int]*marvel.Page, limit int) []marvel.Character {
	offsets := make([]int, 0, len(pages))
	for offset := range pages {
		offsets = append(offsets, offset)
	}
	sort.Ints(offsets)

	var out []marvel.Character
	for _, offset := range offsets {
		if offset > len(out) {
			break
		}
		results := pages[offset].Results
		if skip := len(out) - offset; skip < len(results) {
			out = append(out, results[skip:]...)
		}
	}
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// worker processes offsets from the queue
func (bf *BatchFetcher) worker(ctx context.Context, queue <-chan int, results chan<- pageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for offset := range queue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		page, err := bf.fetchPage(ctx, offset)
		results <- pageResult{Offset: offset, Page: page, Error: err}
		if err != nil {
			return
		}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}
