package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/katzenpost/katzenpost/core/worker"
	"gopkg.in/op/go-logging.v1"

	"securechat/internal/domain"
	"securechat/internal/instrument"
)

// ErrSinkFull is returned by AsyncSink.Append when its queue is full.
var ErrSinkFull = errors.New("store: sink queue full")

// DefaultSinkQueueLength is the AsyncSink queue length used when none is
// configured.
const DefaultSinkQueueLength = 256

// MultiSink fans each record out to every wrapped sink.
type MultiSink []domain.MessageSink

// Append calls every sink, even after a failure, and joins the errors.
func (m MultiSink) Append(ctx context.Context, rec domain.ChatRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncSink hands records to a wrapped sink on a background goroutine.
// Append never blocks; write failures are logged and counted, never
// returned to the caller.
type AsyncSink struct {
	worker.Worker

	next    domain.MessageSink
	log     *logging.Logger
	ch      chan domain.ChatRecord
	timeout time.Duration
	closed  atomic.Bool
}

// NewAsyncSink starts an AsyncSink in front of next.
func NewAsyncSink(next domain.MessageSink, queueLength int, log *logging.Logger) *AsyncSink {
	if queueLength <= 0 {
		queueLength = DefaultSinkQueueLength
	}
	s := &AsyncSink{
		next:    next,
		log:     log,
		ch:      make(chan domain.ChatRecord, queueLength),
		timeout: 10 * time.Second,
	}
	s.Go(s.run)
	return s
}

// Append queues rec.
func (s *AsyncSink) Append(_ context.Context, rec domain.ChatRecord) error {
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.ch <- rec:
		return nil
	default:
		instrument.SinkFailure()
		s.log.Warningf("Dropping chat record %v: queue full", rec.ID)
		return ErrSinkFull
	}
}

// Close stops accepting records, flushes the queue and stops the worker.
// It is safe to call more than once.
func (s *AsyncSink) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.Halt()
}

func (s *AsyncSink) run() {
	for {
		select {
		case <-s.HaltCh():
			s.drain()
			return
		case rec := <-s.ch:
			s.write(rec)
		}
	}
}

func (s *AsyncSink) drain() {
	for {
		select {
		case rec := <-s.ch:
			s.write(rec)
		default:
			return
		}
	}
}

func (s *AsyncSink) write(rec domain.ChatRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.next.Append(ctx, rec); err != nil {
		instrument.SinkFailure()
		s.log.Errorf("Failed to persist chat record %v: %v", rec.ID, err)
	}
}

// Compile-time assertions that the sinks implement domain.MessageSink.
var (
	_ domain.MessageSink = MultiSink(nil)
	_ domain.MessageSink = (*AsyncSink)(nil)
)
