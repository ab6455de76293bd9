// internal/service/batch.go
package service

import "time"

const (
	DefaultBatchSize  = 50
	DefaultBatchDelay = 100 * time.Millisecond
)

// BatchOptions configures ProcessBatch. Zero values fall back to the
// defaults above.
type BatchOptions struct {
	BatchSize       int
	Delay           time.Duration
	OnProgress      func(processed, total int)
	OnBatchComplete func(batchIndex, batchCount int)
}

// ProcessBatch partitions items into fixed-size chunks and runs handler on
// each. Callbacks fire after every chunk, and the delay is awaited between
// chunks (not after the last one) to throttle downstream load. The first
// chunk failure aborts the remaining chunks and propagates. There is no
// mid-flight cancellation; a started batch runs to completion or first error.
func ProcessBatch[T any](items []T, handler func(batch []T) error, opts BatchOptions) error {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultBatchDelay
	}

	total := len(items)
	if total == 0 {
		return nil
	}
	batchCount := (total + opts.BatchSize - 1) / opts.BatchSize

	for i := 0; i < batchCount; i++ {
		start := i * opts.BatchSize
		end := start + opts.BatchSize
		if end > total {
			end = total
		}

		if err := handler(items[start:end]); err != nil {
			return err
		}

		if opts.OnProgress != nil {
			opts.OnProgress(end, total)
		}
		if opts.OnBatchComplete != nil {
			opts.OnBatchComplete(i, batchCount)
		}

		if i < batchCount-1 {
			time.Sleep(opts.Delay)
		}
	}
	return nil
}
