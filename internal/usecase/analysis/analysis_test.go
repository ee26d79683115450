package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kata_analysis/internal/domain/katago"
	kataerr "kata_analysis/internal/errors"
	"kata_analysis/internal/repository"
)

type stubChannel struct {
	events chan repository.Event

	mu   sync.Mutex
	sent []katago.Action
}

func newStubChannel() *stubChannel {
	return &stubChannel{events: make(chan repository.Event, 32)}
}

func (s *stubChannel) Send(a katago.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, a)
	return nil
}

func (s *stubChannel) Events() <-chan repository.Event { return s.events }

func (s *stubChannel) CloseSend() error { return nil }

func (s *stubChannel) sentActions() []katago.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]katago.Action(nil), s.sent...)
}

func (s *stubChannel) emit(resp katago.Response) {
	s.events <- repository.Event{Response: resp}
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func testQuery(t *testing.T, id string) *katago.Query {
	t.Helper()
	q, err := katago.NewQueryBuilder().
		ID(id).
		Moves([]katago.Move{{Player: katago.PlayerBlack, Location: "Q16"}}).
		Rules(katago.RulesTrompTaylor).
		BoardSize(19).
		Build()
	require.NoError(t, err)
	return q
}

func finalResult(id string) *katago.Result {
	return &katago.Result{
		ID:        id,
		MoveInfos: []katago.MoveInfo{{Move: "D4", Winrate: 0.5, Visits: 10}},
		RootInfo:  &katago.RootInfo{Winrate: 0.5, Visits: 10},
	}
}

func TestAnalyzeWaitsForFinalResult(t *testing.T) {
	ch := newStubChannel()
	svc := NewService(ch, nil, nil, testLogger())

	q := testQuery(t, "q1")

	type analyzeOut struct {
		result *katago.Result
		err    error
	}
	out := make(chan analyzeOut, 1)
	go func() {
		result, err := svc.Analyze(context.Background(), q)
		out <- analyzeOut{result, err}
	}()

	require.Eventually(t, func() bool {
		return len(ch.sentActions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// progress noise first, then the final result
	ch.emit(&katago.Resultless{ID: "q1", IsDuringSearch: true, TurnNumber: 0})
	ch.emit(&katago.Result{ID: "q1", IsDuringSearch: true, MoveInfos: []katago.MoveInfo{}})
	ch.emit(finalResult("q1"))

	select {
	case got := <-out:
		require.NoError(t, got.err)
		assert.False(t, got.result.IsDuringSearch)
		require.Len(t, got.result.MoveInfos, 1)
		assert.Equal(t, "D4", got.result.MoveInfos[0].Move)
	case <-time.After(5 * time.Second):
		t.Fatal("Analyze did not return")
	}
}

func TestDemuxInterleavedIDs(t *testing.T) {
	ch := newStubChannel()
	svc := NewService(ch, nil, nil, testLogger())

	ctx := context.Background()
	stream1, cancel1, err := svc.AnalyzeStream(ctx, testQuery(t, "q1"))
	require.NoError(t, err)
	defer cancel1()
	stream2, cancel2, err := svc.AnalyzeStream(ctx, testQuery(t, "q2"))
	require.NoError(t, err)
	defer cancel2()

	// engine answers interleaved and out of submission order
	ch.emit(&katago.Resultless{ID: "q2", IsDuringSearch: true, TurnNumber: 0})
	ch.emit(&katago.Resultless{ID: "q1", IsDuringSearch: true, TurnNumber: 0})
	ch.emit(finalResult("q2"))
	ch.emit(finalResult("q1"))

	readOne := func(stream <-chan katago.Response) katago.Response {
		select {
		case resp := <-stream:
			return resp
		case <-time.After(5 * time.Second):
			t.Fatal("timed out reading stream")
			return nil
		}
	}

	first1 := readOne(stream1)
	assert.IsType(t, &katago.Resultless{}, first1)
	assert.Equal(t, "q1", first1.ResponseID())
	second1 := readOne(stream1)
	assert.IsType(t, &katago.Result{}, second1)
	assert.Equal(t, "q1", second1.ResponseID())

	first2 := readOne(stream2)
	assert.IsType(t, &katago.Resultless{}, first2)
	assert.Equal(t, "q2", first2.ResponseID())
	second2 := readOne(stream2)
	assert.IsType(t, &katago.Result{}, second2)
	assert.Equal(t, "q2", second2.ResponseID())
}

func TestAnalyzeFailsWhenEngineExits(t *testing.T) {
	ch := newStubChannel()
	svc := NewService(ch, nil, nil, testLogger())

	out := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(context.Background(), testQuery(t, "q1"))
		out <- err
	}()

	require.Eventually(t, func() bool {
		return len(ch.sentActions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	close(ch.events)

	select {
	case err := <-out:
		assert.ErrorIs(t, err, kataerr.ErrEngineExited)
	case <-time.After(5 * time.Second):
		t.Fatal("Analyze did not return after engine exit")
	}

	select {
	case <-svc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("service did not report completion")
	}
}

func TestVersion(t *testing.T) {
	ch := newStubChannel()
	svc := NewService(ch, nil, nil, testLogger())

	type versionOut struct {
		version *katago.Version
		err     error
	}
	out := make(chan versionOut, 1)
	go func() {
		v, err := svc.Version(context.Background())
		out <- versionOut{v, err}
	}()

	require.Eventually(t, func() bool {
		return len(ch.sentActions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sent, ok := ch.sentActions()[0].(*katago.QueryVersion)
	require.True(t, ok, "expected QueryVersion, got %T", ch.sentActions()[0])
	require.NotEmpty(t, sent.ID)

	ch.emit(&katago.Version{
		ID:      sent.ID,
		Action:  katago.ActionQueryVersion,
		GitHash: katago.GitHashOmitted,
		Version: "1.16.0",
	})

	select {
	case got := <-out:
		require.NoError(t, got.err)
		assert.Equal(t, "1.16.0", got.version.Version)
		assert.False(t, got.version.HasGitHash())
	case <-time.After(5 * time.Second):
		t.Fatal("Version did not return")
	}
}

func TestTerminate(t *testing.T) {
	ch := newStubChannel()
	svc := NewService(ch, nil, nil, testLogger())

	out := make(chan error, 1)
	go func() {
		out <- svc.Terminate(context.Background(), "q7", []int{2})
	}()

	require.Eventually(t, func() bool {
		return len(ch.sentActions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sent, ok := ch.sentActions()[0].(*katago.Terminate)
	require.True(t, ok, "expected Terminate, got %T", ch.sentActions()[0])
	assert.Equal(t, "q7", sent.TerminateID)
	assert.Equal(t, []int{2}, sent.TurnNumbers)
	assert.NotEqual(t, "q7", sent.ID, "a terminate action carries its own id")

	ch.emit(&katago.TerminateAck{ID: sent.ID, Action: katago.ActionTerminate, TerminateID: "q7"})

	select {
	case err := <-out:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Terminate did not return")
	}
}

func TestTerminateRequiresTarget(t *testing.T) {
	svc := NewService(newStubChannel(), nil, nil, testLogger())
	err := svc.Terminate(context.Background(), "", nil)
	assert.ErrorIs(t, err, kataerr.ErrMissingField)
}

type stubCache struct {
	result *katago.Result

	mu   sync.Mutex
	sets int
}

func (c *stubCache) Get(ctx context.Context, q *katago.Query) (*katago.Result, bool) {
	if c.result == nil {
		return nil, false
	}
	return c.result, true
}

func (c *stubCache) Set(ctx context.Context, q *katago.Query, result *katago.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.result = result
}

func TestAnalyzeServedFromCache(t *testing.T) {
	ch := newStubChannel()
	cache := &stubCache{result: finalResult("cached")}
	svc := NewService(ch, cache, nil, testLogger())

	result, err := svc.Analyze(context.Background(), testQuery(t, "q1"))
	require.NoError(t, err)
	assert.Equal(t, "cached", result.ID)
	assert.Empty(t, ch.sentActions(), "cache hit must not reach the engine")
}
