package analysis

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kata_analysis/internal/bootstrap"
	"kata_analysis/internal/domain/katago"
	"kata_analysis/internal/httpresponse"
	"kata_analysis/internal/repository"
	"kata_analysis/internal/utils"
)

// AnalyzeRequest is the external JSON shape of an analysis request. Only
// the id is generated server side; everything else maps onto the engine
// query.
type AnalyzeRequest struct {
	InitialStones    []katago.Move  `json:"initial_stones,omitempty"`
	Moves            []katago.Move  `json:"moves"`
	Rules            katago.Rules   `json:"rules"`
	Komi             *float64       `json:"komi,omitempty"`
	BoardXSize       int            `json:"board_x_size"`
	BoardYSize       int            `json:"board_y_size"`
	AnalyzeTurns     []int          `json:"analyze_turns,omitempty"`
	MaxVisits        *int           `json:"max_visits,omitempty"`
	IncludeOwnership *bool          `json:"include_ownership,omitempty"`
	IncludePolicy    *bool          `json:"include_policy,omitempty"`
	ReportEvery      *float64       `json:"report_every,omitempty"`
	OverrideSettings map[string]any `json:"override_settings,omitempty"`
}

type TerminateRequest struct {
	QueryID     string `json:"query_id"`
	TurnNumbers []int  `json:"turn_numbers,omitempty"`
}

// AnalysisService is the part of the analysis usecase the handlers need.
type AnalysisService interface {
	Analyze(ctx context.Context, q *katago.Query) (*katago.Result, error)
	AnalyzeStream(ctx context.Context, q *katago.Query) (<-chan katago.Response, func(), error)
	Version(ctx context.Context) (*katago.Version, error)
	ClearCache(ctx context.Context) error
	Terminate(ctx context.Context, queryID string, turnNumbers []int) error
}

// ArchiveLister exposes the stored analysis history.
type ArchiveLister interface {
	ListRecent(ctx context.Context, limit int) ([]repository.AnalysisRecord, error)
}

type AnalysisHandler struct {
	cfg     bootstrap.Config
	log     *zap.SugaredLogger
	service AnalysisService
	archive ArchiveLister // may be nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewAnalysisHandler(cfg bootstrap.Config, log *zap.SugaredLogger, service AnalysisService, archive ArchiveLister) *AnalysisHandler {
	return &AnalysisHandler{
		cfg:     cfg,
		log:     log,
		service: service,
		archive: archive,
	}
}

func (h *AnalysisHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		h.log.Error("analyze request decode error:", err)
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	query, err := buildQuery(&req)
	if err != nil {
		h.log.Error("analyze request rejected:", err)
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Analyze(r.Context(), query)
	if err != nil {
		h.log.Errorf("analysis %s failed: %v", query.ID, err)
		httpresponse.WriteErrorWithStatus(w, http.StatusBadGateway, "analysis failed: "+err.Error())
		return
	}

	httpresponse.WriteResponseWithStatus(w, http.StatusOK, result)
}

// HandleAnalyzeStream upgrades to a websocket, reads one AnalyzeRequest
// frame and streams every engine response for that query back to the
// client, ending after the final result.
func (h *AnalysisHandler) HandleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed:", err)
		return
	}
	defer conn.Close()

	var req AnalyzeRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeSocketError(conn, "invalid request: "+err.Error())
		return
	}

	query, err := buildQuery(&req)
	if err != nil {
		h.writeSocketError(conn, err.Error())
		return
	}

	stream, cancel, err := h.service.AnalyzeStream(r.Context(), query)
	if err != nil {
		h.writeSocketError(conn, "analysis failed: "+err.Error())
		return
	}
	defer cancel()

	for resp := range stream {
		if err := conn.WriteJSON(resp); err != nil {
			h.log.Warnf("websocket write for %s failed: %v", query.ID, err)
			return
		}
		if result, ok := resp.(*katago.Result); ok && !result.IsDuringSearch {
			return
		}
	}
}

func (h *AnalysisHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	version, err := h.service.Version(r.Context())
	if err != nil {
		h.log.Error("version query failed:", err)
		httpresponse.WriteErrorWithStatus(w, http.StatusBadGateway, "version query failed: "+err.Error())
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, version)
}

func (h *AnalysisHandler) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCache(r.Context()); err != nil {
		h.log.Error("clear cache failed:", err)
		httpresponse.WriteErrorWithStatus(w, http.StatusBadGateway, "clear cache failed: "+err.Error())
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *AnalysisHandler) HandleTerminate(w http.ResponseWriter, r *http.Request) {
	var req TerminateRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		h.log.Error("terminate request decode error:", err)
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.QueryID == "" {
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, "query_id is required")
		return
	}

	if err := h.service.Terminate(r.Context(), req.QueryID, req.TurnNumbers); err != nil {
		h.log.Errorf("terminate %s failed: %v", req.QueryID, err)
		httpresponse.WriteErrorWithStatus(w, http.StatusBadGateway, "terminate failed: "+err.Error())
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, map[string]string{"terminated": req.QueryID})
}

func (h *AnalysisHandler) HandleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		httpresponse.WriteErrorWithStatus(w, http.StatusNotFound, "archive is not configured")
		return
	}

	limit := h.cfg.ArchiveLimit
	if limit <= 0 {
		limit = 20
	}

	records, err := h.archive.ListRecent(r.Context(), limit)
	if err != nil {
		h.log.Error("list analyses failed:", err)
		httpresponse.WriteInternalErrorResponse(w)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, records)
}

func (h *AnalysisHandler) writeSocketError(conn *websocket.Conn, msg string) {
	h.log.Error(msg)
	if err := conn.WriteJSON(map[string]string{"error": msg}); err != nil {
		h.log.Warn("websocket error write failed:", err)
	}
}

func buildQuery(req *AnalyzeRequest) (*katago.Query, error) {
	b := katago.NewQueryBuilder().
		ID(uuid.New().String()).
		Moves(req.Moves).
		BoardXSize(req.BoardXSize).
		BoardYSize(req.BoardYSize)

	if req.Rules != "" {
		b.Rules(req.Rules)
	}

	if req.InitialStones != nil {
		b.InitialStones(req.InitialStones)
	}
	if req.Komi != nil {
		b.Komi(*req.Komi)
	}
	if req.AnalyzeTurns != nil {
		b.AnalyzeTurns(req.AnalyzeTurns)
	}
	if req.MaxVisits != nil {
		b.MaxVisits(*req.MaxVisits)
	}
	if req.IncludeOwnership != nil {
		b.IncludeOwnership(*req.IncludeOwnership)
	}
	if req.IncludePolicy != nil {
		b.IncludePolicy(*req.IncludePolicy)
	}
	if req.ReportEvery != nil {
		b.ReportDuringSearchEvery(*req.ReportEvery)
	}
	if req.OverrideSettings != nil {
		b.OverrideSettings(req.OverrideSettings)
	}

	return b.Build()
}
