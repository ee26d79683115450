package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kata_analysis/internal/bootstrap"
	"kata_analysis/internal/domain/katago"
)

type stubService struct {
	result  *katago.Result
	version *katago.Version
	err     error

	lastQuery      *katago.Query
	terminatedID   string
	clearedCache   bool
	terminateTurns []int
}

func (s *stubService) Analyze(ctx context.Context, q *katago.Query) (*katago.Result, error) {
	s.lastQuery = q
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubService) AnalyzeStream(ctx context.Context, q *katago.Query) (<-chan katago.Response, func(), error) {
	s.lastQuery = q
	if s.err != nil {
		return nil, nil, s.err
	}
	ch := make(chan katago.Response, 1)
	if s.result != nil {
		ch <- s.result
	}
	close(ch)
	return ch, func() {}, nil
}

func (s *stubService) Version(ctx context.Context) (*katago.Version, error) {
	return s.version, s.err
}

func (s *stubService) ClearCache(ctx context.Context) error {
	s.clearedCache = true
	return s.err
}

func (s *stubService) Terminate(ctx context.Context, queryID string, turnNumbers []int) error {
	s.terminatedID = queryID
	s.terminateTurns = turnNumbers
	return s.err
}

func newTestHandler(service *stubService) *AnalysisHandler {
	return NewAnalysisHandler(bootstrap.Config{}, zap.NewNop().Sugar(), service, nil)
}

func TestHandleAnalyze(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		service := &stubService{
			result: &katago.Result{
				ID:        "r1",
				MoveInfos: []katago.MoveInfo{{Move: "D4", Winrate: 0.47}},
				RootInfo:  &katago.RootInfo{Winrate: 0.47, Visits: 100},
			},
		}
		h := newTestHandler(service)

		body := `{"moves":[["B","Q16"],["W","D4"]],"rules":"tromp-taylor","board_x_size":19,"board_y_size":19,"komi":6.5}`
		r := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
		w := httptest.NewRecorder()

		h.HandleAnalyze(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"moveInfos"`)

		require.NotNil(t, service.lastQuery)
		q := service.lastQuery
		assert.NotEmpty(t, q.ID)
		assert.Len(t, q.Moves, 2)
		assert.Equal(t, katago.RulesTrompTaylor, q.Rules)
		require.NotNil(t, q.Komi)
		assert.Equal(t, 6.5, *q.Komi)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		h := newTestHandler(&stubService{})

		r := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("{not json"))
		w := httptest.NewRecorder()

		h.HandleAnalyze(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing rules", func(t *testing.T) {
		h := newTestHandler(&stubService{})

		body := `{"moves":[],"board_x_size":19,"board_y_size":19}`
		r := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
		w := httptest.NewRecorder()

		h.HandleAnalyze(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "rules")
	})

	t.Run("engine failure maps to bad gateway", func(t *testing.T) {
		h := newTestHandler(&stubService{err: context.DeadlineExceeded})

		body := `{"moves":[],"rules":"chinese","board_x_size":19,"board_y_size":19}`
		r := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
		w := httptest.NewRecorder()

		h.HandleAnalyze(w, r)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestHandleVersion(t *testing.T) {
	service := &stubService{
		version: &katago.Version{
			ID:      "v1",
			Action:  katago.ActionQueryVersion,
			GitHash: "abc123",
			Version: "1.16.0",
		},
	}
	h := newTestHandler(service)

	r := httptest.NewRequest(http.MethodGet, "/version", nil)
	w := httptest.NewRecorder()

	h.HandleVersion(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1.16.0")
}

func TestHandleClearCache(t *testing.T) {
	service := &stubService{}
	h := newTestHandler(service)

	r := httptest.NewRequest(http.MethodPost, "/clearCache", nil)
	w := httptest.NewRecorder()

	h.HandleClearCache(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, service.clearedCache)
}

func TestHandleTerminate(t *testing.T) {
	t.Run("missing query_id", func(t *testing.T) {
		h := newTestHandler(&stubService{})

		r := httptest.NewRequest(http.MethodPost, "/terminate", strings.NewReader(`{}`))
		w := httptest.NewRecorder()

		h.HandleTerminate(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("valid request", func(t *testing.T) {
		service := &stubService{}
		h := newTestHandler(service)

		body := `{"query_id":"q7","turn_numbers":[0,2]}`
		r := httptest.NewRequest(http.MethodPost, "/terminate", strings.NewReader(body))
		w := httptest.NewRecorder()

		h.HandleTerminate(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "q7", service.terminatedID)
		assert.Equal(t, []int{0, 2}, service.terminateTurns)
	})
}

func TestHandleListAnalysesWithoutArchive(t *testing.T) {
	h := newTestHandler(&stubService{})

	r := httptest.NewRequest(http.MethodGet, "/analyses", nil)
	w := httptest.NewRecorder()

	h.HandleListAnalyses(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
