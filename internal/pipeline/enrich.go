package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/enrich"
	"dealcatalog/lib/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	report_enrich_lookup   = "enrich.lookup"
	report_enrich_progress = "enrich.completed"
)

type Lookuper interface {
	Lookup(ctx context.Context, title string) (enrich.Lookup, error)
}

type EnrichOptions struct {
	// Concurrency is the number of lookups in flight, 1 or less runs them one at a time.
	Concurrency int
	// Timeout bounds the whole stage, lookups that have not finished by then are left null.
	Timeout time.Duration
}

// EnrichResult holds one record per title key that matched.
type EnrichResult struct {
	Records map[string]catalog.Enrichment
	// Keys is the number of distinct title keys.
	Keys        int
	Matched     int
	Cached      int
	NotFound    int
	Failed      int
	Unattempted int
	Anomalies   []catalog.Anomaly
	// Partial is true when the stage was cancelled or timed out.
	Partial bool
}

type lookupSlot struct {
	title    string
	key      string
	finished bool
	lookup   enrich.Lookup
	err      error
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// EnrichAll looks up every distinct title key once. Each lookup writes only its own
// slot, so finished lookups survive cancellation without any locking.
func EnrichAll(ctx context.Context, lookuper Lookuper, listings []catalog.Listing, opts EnrichOptions, tel telemetry.API) EnrichResult {
	ctx, span := tracer.Start(ctx, "EnrichAll")
	defer span.End()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var slots []lookupSlot
	seen := map[string]bool{}
	for _, l := range listings {
		key := l.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		slots = append(slots, lookupSlot{title: l.Title, key: key})
	}

	var completed atomic.Int64
	run := func(slot *lookupSlot) {
		if ctx.Err() != nil {
			return
		}
		slot.lookup, slot.err = lookuper.Lookup(ctx, slot.title)
		slot.finished = !isCancellation(slot.err)
		tel.ReportCount(report_enrich_progress, completed.Add(1))
	}

	if opts.Concurrency <= 1 {
		for i := range slots {
			run(&slots[i])
		}
	} else {
		var group errgroup.Group
		group.SetLimit(opts.Concurrency)
		for i := range slots {
			if ctx.Err() != nil {
				break
			}
			slot := &slots[i]
			group.Go(func() error {
				run(slot)
				return nil
			})
		}
		group.Wait()
	}

	result := EnrichResult{
		Records: make(map[string]catalog.Enrichment, len(slots)),
		Keys:    len(slots),
		Partial: ctx.Err() != nil,
	}
	for _, slot := range slots {
		switch {
		case !slot.finished:
			result.Unattempted++
		case slot.err == nil:
			result.Matched++
			if slot.lookup.Cached {
				result.Cached++
			}
			result.Records[slot.key] = slot.lookup.Record
			result.Anomalies = append(result.Anomalies, slot.lookup.Anomalies...)
		case errors.Is(slot.err, catalog.ErrNotFound):
			result.NotFound++
		default:
			result.Failed++
			tel.ReportWarning(report_enrich_lookup, slot.title, slot.err)
			result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(slot.title, slot.err))
		}
	}

	span.SetAttributes(
		attribute.Int("keys", result.Keys),
		attribute.Int("matched", result.Matched),
		attribute.Bool("partial", result.Partial),
	)
	return result
}
