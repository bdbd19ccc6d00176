package catalog

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// maxCursorWaves caps cursor-chain pagination so a malformed or cyclic chain
// cannot spin forever. Hitting the cap is not an error; the tracks gathered so
// far are returned.
const maxCursorWaves = 50

// paginator fetches the remaining pages of a playlist in waves. Each wave
// holds up to concurrency*2 page requests with at most concurrency of them in
// flight at once. Pages that fail are logged and skipped; pagination never
// fails a resolve.
type paginator struct {
	concurrency int
	limiter     *rate.Limiter
	log         *log.Logger
}

func newPaginator(concurrency int, rateLimit float64, logger *log.Logger) *paginator {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &paginator{concurrency: concurrency, log: logger}
	if rateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(rateLimit), 1)
	}
	return p
}

// offsetPage fetches one page of tracks at the given offset.
type offsetPage func(ctx context.Context, offset int) ([]*Track, error)

// cursorPage fetches one page at the given cursor and returns the page's own
// next cursor, empty when the chain ends.
type cursorPage func(ctx context.Context, cursor string) ([]*Track, string, error)

// remainingOffsets returns every multiple of limit in [limit, total),
// truncated to pageLimit entries when pageLimit is positive.
func remainingOffsets(limit, total, pageLimit int) []int {
	if limit <= 0 {
		return nil
	}
	var offsets []int
	for offset := limit; offset < total; offset += limit {
		if pageLimit > 0 && len(offsets) >= pageLimit {
			break
		}
		offsets = append(offsets, offset)
	}
	return offsets
}

// collectOffsets fetches all offsets and returns the surviving tracks in wave
// order plus the number of dropped pages.
func (p *paginator) collectOffsets(ctx context.Context, offsets []int, fetch offsetPage) ([]*Track, int) {
	var tracks []*Track
	dropped := p.offsetWaves(ctx, offsets, fetch, func(page []*Track) {
		tracks = append(tracks, page...)
	})
	return tracks, dropped
}

// offsetWaves fetches the given offsets wave by wave, invoking emit once per
// surviving page between waves. Pages are emitted in submission order within a
// wave even though their fetches complete unordered. Returns the number of
// dropped pages.
func (p *paginator) offsetWaves(ctx context.Context, offsets []int, fetch offsetPage, emit func([]*Track)) int {
	waveSize := p.concurrency * 2
	var dropped atomic.Int64

	for start := 0; start < len(offsets); start += waveSize {
		if ctx.Err() != nil {
			break
		}

		wave := offsets[start:min(start+waveSize, len(offsets))]
		pages := make([][]*Track, len(wave))

		var g errgroup.Group
		g.SetLimit(p.concurrency)
		for i, offset := range wave {
			g.Go(func() error {
				if err := p.wait(ctx); err != nil {
					dropped.Add(1)
					return nil
				}
				page, err := fetch(ctx, offset)
				if err != nil {
					p.log.Warn("skipping playlist page", "offset", offset, "err", err)
					dropped.Add(1)
					return nil
				}
				pages[i] = page
				return nil
			})
		}
		g.Wait()

		for _, page := range pages {
			if len(page) > 0 {
				emit(page)
			}
		}
	}

	return int(dropped.Load())
}

// collectCursors follows a cursor chain starting at first and returns the
// surviving tracks in wave order plus the number of dropped pages.
func (p *paginator) collectCursors(ctx context.Context, first string, fetch cursorPage) ([]*Track, int) {
	var tracks []*Track
	dropped := p.cursorWaves(ctx, first, fetch, func(page []*Track) {
		tracks = append(tracks, page...)
	})
	return tracks, dropped
}

// cursorWaves follows a cursor chain wave by wave: pending cursors are fetched
// up to waveSize at a time, and each successful page enqueues its own next
// cursor for a later wave. Stops when no cursors remain or after maxCursorWaves
// waves. Returns the number of dropped pages.
func (p *paginator) cursorWaves(ctx context.Context, first string, fetch cursorPage, emit func([]*Track)) int {
	waveSize := p.concurrency * 2
	var droppedTotal int

	var queue []string
	if first != "" {
		queue = append(queue, first)
	}

	for waves := 0; len(queue) > 0 && waves < maxCursorWaves; waves++ {
		if ctx.Err() != nil {
			break
		}

		wave := queue[:min(waveSize, len(queue))]
		queue = queue[len(wave):]
		pages := make([][]*Track, len(wave))
		nexts := make([]string, len(wave))

		var dropped atomic.Int64
		var g errgroup.Group
		g.SetLimit(p.concurrency)
		for i, cursor := range wave {
			g.Go(func() error {
				if err := p.wait(ctx); err != nil {
					dropped.Add(1)
					return nil
				}
				page, next, err := fetch(ctx, cursor)
				if err != nil {
					p.log.Warn("skipping playlist page", "cursor", cursor, "err", err)
					dropped.Add(1)
					return nil
				}
				pages[i], nexts[i] = page, next
				return nil
			})
		}
		g.Wait()
		droppedTotal += int(dropped.Load())

		for i, page := range pages {
			if len(page) > 0 {
				emit(page)
			}
			if nexts[i] != "" {
				queue = append(queue, nexts[i])
			}
		}
	}

	return droppedTotal
}

// wait blocks on the optional request pacer before a page fetch.
func (p *paginator) wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// batches slices tracks into size-sized chunks, preserving order. Used by the
// streaming variant; the batch size is a logical grouping and does not change
// the network page size.
func batches(tracks []*Track, size int) [][]*Track {
	if size <= 0 {
		size = len(tracks)
	}
	var out [][]*Track
	for start := 0; start < len(tracks); start += size {
		out = append(out, tracks[start:min(start+size, len(tracks))])
	}
	return out
}
