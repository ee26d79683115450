// Package analysis re-associates interleaved engine responses with the
// queries that asked for them. The engine answers out of order relative to
// submission, so the service keeps one subscriber channel per outstanding
// action id and routes every decoded response to it.
package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kata_analysis/internal/domain/katago"
	kataerr "kata_analysis/internal/errors"
	"kata_analysis/internal/repository"
)

const subscriberBuffer = 16

// Channel is the duplex engine channel the service drives. Satisfied by
// *repository.EngineChannel.
type Channel interface {
	Send(katago.Action) error
	Events() <-chan repository.Event
	CloseSend() error
}

// ResultCache caches final results by position. Satisfied by
// *repository.ResultCache.
type ResultCache interface {
	Get(ctx context.Context, q *katago.Query) (*katago.Result, bool)
	Set(ctx context.Context, q *katago.Query, result *katago.Result)
}

// Archive persists completed analyses. Satisfied by
// *repository.AnalysisArchive.
type Archive interface {
	Save(ctx context.Context, q *katago.Query, result *katago.Result) error
}

type Service struct {
	ch      Channel
	cache   ResultCache // may be nil
	archive Archive     // may be nil
	log     *zap.SugaredLogger

	subscribers sync.Map // action id -> chan katago.Response
	done        chan struct{}
}

// NewService starts the demux loop immediately; the service is live until
// the engine closes its output.
func NewService(ch Channel, cache ResultCache, archive Archive, log *zap.SugaredLogger) *Service {
	s := &Service{
		ch:      ch,
		cache:   cache,
		archive: archive,
		log:     log,
		done:    make(chan struct{}),
	}
	go s.demux()
	return s
}

func (s *Service) demux() {
	defer close(s.done)

	for ev := range s.ch.Events() {
		if ev.Err != nil {
			s.log.Errorw("engine stream error", "error", ev.Err)
			continue
		}

		id := ev.Response.ResponseID()
		chIface, ok := s.subscribers.Load(id)
		if !ok {
			s.log.Warnw("no subscriber for response id", "id", id)
			continue
		}

		select {
		case chIface.(chan katago.Response) <- ev.Response:
		default:
			s.log.Warnw("subscriber too slow, dropping response", "id", id)
		}
	}

	// Engine exited: wake every waiter.
	s.subscribers.Range(func(key, value any) bool {
		close(value.(chan katago.Response))
		s.subscribers.Delete(key)
		return true
	})
}

// Done is closed once the engine's output stream has ended.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Close stops accepting actions; the engine drains and exits on its own.
func (s *Service) Close() error {
	return s.ch.CloseSend()
}

func (s *Service) subscribe(id string) (chan katago.Response, func()) {
	ch := make(chan katago.Response, subscriberBuffer)
	s.subscribers.Store(id, ch)
	return ch, func() { s.subscribers.Delete(id) }
}

// Analyze runs one query to completion and returns its final result. For
// multi-turn queries (analyzeTurns with several entries) use AnalyzeStream;
// Analyze returns after the first final result.
func (s *Service) Analyze(ctx context.Context, q *katago.Query) (*katago.Result, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, q); ok {
			s.log.Infow("analysis served from cache", "id", q.ID)
			return cached, nil
		}
	}

	sub, unsubscribe := s.subscribe(q.ID)
	defer unsubscribe()

	if err := s.ch.Send(q); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-sub:
			if !ok {
				return nil, kataerr.ErrEngineExited
			}
			result, ok := resp.(*katago.Result)
			if !ok || result.IsDuringSearch {
				continue
			}
			if s.cache != nil {
				s.cache.Set(ctx, q, result)
			}
			if s.archive != nil {
				if err := s.archive.Save(ctx, q, result); err != nil {
					s.log.Errorw("failed to archive analysis", "id", q.ID, "error", err)
				}
			}
			return result, nil
		}
	}
}

// AnalyzeStream submits a query and returns the raw per-id response stream:
// progress reports, per-turn results, everything the engine emits for this
// id, in emission order. The caller must invoke the returned cancel
// function when done reading.
func (s *Service) AnalyzeStream(ctx context.Context, q *katago.Query) (<-chan katago.Response, func(), error) {
	sub, unsubscribe := s.subscribe(q.ID)

	if err := s.ch.Send(q); err != nil {
		unsubscribe()
		return nil, nil, err
	}
	return sub, unsubscribe, nil
}

// Version asks the engine to identify itself.
func (s *Service) Version(ctx context.Context) (*katago.Version, error) {
	id := uuid.New().String()
	sub, unsubscribe := s.subscribe(id)
	defer unsubscribe()

	if err := s.ch.Send(&katago.QueryVersion{ID: id}); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-sub:
			if !ok {
				return nil, kataerr.ErrEngineExited
			}
			if v, ok := resp.(*katago.Version); ok {
				return v, nil
			}
		}
	}
}

// ClearCache drops the engine's search tree and NN cache.
func (s *Service) ClearCache(ctx context.Context) error {
	id := uuid.New().String()
	sub, unsubscribe := s.subscribe(id)
	defer unsubscribe()

	if err := s.ch.Send(&katago.ClearCache{ID: id}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-sub:
			if !ok {
				return kataerr.ErrEngineExited
			}
			if _, ok := resp.(*katago.CacheCleared); ok {
				return nil
			}
		}
	}
}

// Terminate cancels the in-flight query with the given id and waits for the
// engine's acknowledgment. A non-empty turnNumbers list cancels only those
// turns. No timeout is imposed here; pass a deadline via ctx if needed.
func (s *Service) Terminate(ctx context.Context, queryID string, turnNumbers []int) error {
	if queryID == "" {
		return fmt.Errorf("%w: terminateId", kataerr.ErrMissingField)
	}

	id := uuid.New().String()
	sub, unsubscribe := s.subscribe(id)
	defer unsubscribe()

	action := &katago.Terminate{
		ID:          id,
		TerminateID: queryID,
		TurnNumbers: turnNumbers,
	}
	if err := s.ch.Send(action); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-sub:
			if !ok {
				return kataerr.ErrEngineExited
			}
			if _, ok := resp.(*katago.TerminateAck); ok {
				return nil
			}
		}
	}
}
