// Package api exposes the dashboard's HTTP surface: logical-table queries,
// portfolio insights, conversational questions with caller-driven polling,
// and operator endpoints for history and health.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"voc-dashboard/internal/domain"
	"voc-dashboard/internal/insights"
)

// Conversations is the orchestrator slice the handler needs.
type Conversations interface {
	Submit(ctx context.Context, question, scope string) (string, error)
	Poll(ctx context.Context, handle string) (*domain.Conversation, error)
	Cancel(handle string) error
	PollInterval() time.Duration
}

// HistoryLister reads back recorded data-access requests.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}

// Handler serves the HTTP API.
type Handler struct {
	data     insights.Querier
	insights *insights.Service
	conv     Conversations // nil when the conversational feature is not configured
	history  HistoryLister // nil when history is disabled
}

// NewHandler creates the API handler. conv and history may be nil; their
// endpoints then answer 503.
func NewHandler(data insights.Querier, ins *insights.Service, conv Conversations, history HistoryLister) *Handler {
	return &Handler{data: data, insights: ins, conv: conv, history: history}
}

// Routes mounts every endpoint on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/query", h.handleQuery)
	r.Get("/properties", h.handleProperties)

	r.Get("/insights/kpis", h.handleKPIs)
	r.Get("/insights/flagged", h.handleFlagged)
	r.Get("/insights/recommendations/{propertyID}", h.handleRecommendations)

	r.Post("/questions", h.handleAsk)
	r.Get("/questions/{id}", h.handlePoll)
	r.Delete("/questions/{id}", h.handleCancel)

	r.Get("/history", h.handleHistory)
}

type queryRequest struct {
	Table   string            `json:"table"`
	Filters map[string]string `json:"filters,omitempty"`
	Shape   string            `json:"shape,omitempty"`
}

type queryResponse struct {
	Table   string                   `json:"table"`
	Source  domain.Source            `json:"source"`
	Columns []string                 `json:"columns,omitempty"`
	Rows    [][]interface{}          `json:"rows,omitempty"`
	Records []map[string]interface{} `json:"records,omitempty"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	table, err := domain.ParseLogicalTable(req.Table)
	if err != nil {
		writeError(w, err)
		return
	}
	shape, err := domain.ParseShape(req.Shape)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := h.data.Query(r.Context(), table, req.Filters, shape)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shapeResponse(table, payload, shape))
}

// handleProperties is shorthand for querying the locations table as records.
func (h *Handler) handleProperties(w http.ResponseWriter, r *http.Request) {
	payload, err := h.data.Query(r.Context(), domain.TableLocations, nil, domain.ShapeRecords)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shapeResponse(domain.TableLocations, payload, domain.ShapeRecords))
}

func shapeResponse(table domain.LogicalTable, payload *domain.ResultPayload, shape domain.Shape) queryResponse {
	resp := queryResponse{Table: string(table), Source: payload.Source}
	if shape == domain.ShapeRecords {
		resp.Records = payload.Records()
		return resp
	}
	resp.Columns = payload.Columns
	resp.Rows = payload.Rows
	return resp
}

func (h *Handler) handleKPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.insights.KPIs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kpis)
}

func (h *Handler) handleFlagged(w http.ResponseWriter, r *http.Request) {
	flagged, err := h.insights.Flagged(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if flagged == nil {
		flagged = []insights.FlaggedAspect{}
	}
	writeJSON(w, http.StatusOK, flagged)
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	propertyID := chi.URLParam(r, "propertyID")
	recs, err := h.insights.Recommendations(r.Context(), propertyID)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []insights.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type askRequest struct {
	Question   string `json:"question"`
	PropertyID string `json:"property_id,omitempty"`
}

type askResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	PollAfterMS int64  `json:"poll_after_ms"`
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	if h.conv == nil {
		writeError(w, domain.ErrConfig("conversational queries are not configured"))
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	id, err := h.conv.Submit(r.Context(), req.Question, req.PropertyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, askResponse{
		ID:          id,
		Status:      string(domain.ConversationSubmitted),
		PollAfterMS: h.conv.PollInterval().Milliseconds(),
	})
}

type answerSegment struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	SQLText string          `json:"sql,omitempty"`
	Columns []string        `json:"columns,omitempty"`
	Rows    [][]interface{} `json:"rows,omitempty"`
}

type pollResponse struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Answer      []answerSegment `json:"answer,omitempty"`
	Error       string          `json:"error,omitempty"`
	PollAfterMS int64           `json:"poll_after_ms,omitempty"`
}

func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	if h.conv == nil {
		writeError(w, domain.ErrConfig("conversational queries are not configured"))
		return
	}

	conv, err := h.conv.Poll(r.Context(), chi.URLParam(r, "id"))
	if err != nil && conv == nil {
		writeError(w, err)
		return
	}
	// A timed-out conversation still returns its snapshot; the distinct
	// status is the signal, not the HTTP code.
	resp := pollResponse{
		ID:     conv.ID,
		Status: string(conv.Status),
		Error:  conv.ErrorMessage,
	}
	if !conv.Status.Terminal() {
		resp.PollAfterMS = h.conv.PollInterval().Milliseconds()
	}
	if conv.Answer != nil {
		for _, seg := range conv.Answer.Segments {
			out := answerSegment{Type: string(seg.Type), Text: seg.Text, SQLText: seg.SQLText}
			if seg.Table != nil {
				out.Columns = seg.Table.Columns
				out.Rows = seg.Table.Rows
			}
			resp.Answer = append(resp.Answer, out)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if h.conv == nil {
		writeError(w, domain.ErrConfig("conversational queries are not configured"))
		return
	}
	if err := h.conv.Cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type historyEntry struct {
	ID          int64  `json:"id"`
	RequestedAt string `json:"requested_at"`
	Table       string `json:"table"`
	Fingerprint string `json:"fingerprint"`
	Source      string `json:"source"`
	DurationMS  int64  `json:"duration_ms"`
	RowCount    int    `json:"row_count"`
	Error       string `json:"error,omitempty"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, domain.ErrConfig("history is not enabled"))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, domain.ErrValidation("invalid limit %q", raw))
			return
		}
		limit = n
	}

	entries, err := h.history.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			ID:          e.ID,
			RequestedAt: e.RequestedAt.UTC().Format(time.RFC3339),
			Table:       string(e.Table),
			Fingerprint: e.Fingerprint,
			Source:      string(e.Source),
			DurationMS:  e.DurationMS,
			RowCount:    e.RowCount,
			Error:       e.ErrorText,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := httpStatusFromDomainError(err)
	writeJSON(w, status, map[string]interface{}{
		"code":    status,
		"message": err.Error(),
	})
}
