package pagination

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one batch.
type BatchResult[In, Out any] struct {
	Index  int
	Inputs []In
	Output Out
	Error  error
}

// BatchFunc processes one chunk of inputs.
type BatchFunc[In, Out any] func(ctx context.Context, inputs []In) (Out, error)

// Chunk splits items into consecutive chunks of at most size items.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Batches runs fn over cfg.BatchSize chunks of inputs with at most
// cfg.MaxConcurrency chunks in flight. Results are returned in chunk
// order. A failed chunk is recorded in its result and does not stop the
// others; cancelling ctx fails the chunks that have not finished.
func Batches[In, Out any](ctx context.Context, inputs []In, cfg Config, fn BatchFunc[In, Out]) []BatchResult[In, Out] {
	cfg = cfg.withDefaults()
	chunks := Chunk(inputs, cfg.BatchSize)
	results := make([]BatchResult[In, Out], len(chunks))
	if len(chunks) == 0 {
		return results
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(cfg.MaxConcurrency)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		results[i] = BatchResult[In, Out]{Index: i, Inputs: chunk}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Error = err
				return nil
			}
			batchCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()

			out, err := fn(batchCtx, chunk)
			if err != nil {
				log.Warn().
					Err(err).
					Int("batch", i).
					Int("size", len(chunk)).
					Msg("Batch failed")
				results[i].Error = err
				return nil
			}
			results[i].Output = out
			return nil
		})
	}
	_ = g.Wait()

	log.Debug().
		Int("batches", len(chunks)).
		Int("inputs", len(inputs)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results
}
