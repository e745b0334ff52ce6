package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// InstallSink persists a single install record. *DB satisfies it.
type InstallSink interface {
	LogInstall(ctx context.Context, in *Install) error
}

// AuditWriter buffers install records and writes them in the background so
// a slow database never delays the request that triggered the install.
type AuditWriter struct {
	sink    InstallSink
	ch      chan *Install
	wg      sync.WaitGroup
	done    chan struct{}
	backoff time.Duration
}

func NewAuditWriter(sink InstallSink, bufferSize int) *AuditWriter {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	return &AuditWriter{
		sink:    sink,
		ch:      make(chan *Install, bufferSize),
		done:    make(chan struct{}),
		backoff: 100 * time.Millisecond,
	}
}

func (w *AuditWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

// Log enqueues a record, dropping it if the buffer is full.
func (w *AuditWriter) Log(in *Install) {
	select {
	case w.ch <- in:
	default:
		log.Warn().Str("package", in.Package).Msg("install ledger buffer full, dropping entry")
	}
}

// Flush stops the writer and waits up to timeout for queued records.
func (w *AuditWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("install ledger flushed")
	case <-time.After(timeout):
		log.Warn().Msg("install ledger flush timed out")
	}
}

func (w *AuditWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case in := <-w.ch:
			w.writeWithRetry(in)
		case <-w.done:
			for {
				select {
				case in := <-w.ch:
					w.writeWithRetry(in)
				default:
					return
				}
			}
		}
	}
}

func (w *AuditWriter) writeWithRetry(in *Install) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.sink.LogInstall(ctx, in)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * w.backoff
			log.Warn().
				Err(err).
				Str("package", in.Package).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("install ledger write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("package", in.Package).
				Msg("install ledger write failed permanently after retries")
		}
	}
}
