package highscorehttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	highscoreservice "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/application"
	highscoreevents "github.com/Black-And-White-Club/highscore-ledger/internal/events/highscore"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/Black-And-White-Club/highscore-ledger/internal/observability/attr"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

// DefaultLeaderboardLimit is used when a leaderboard request omits limit.
const DefaultLeaderboardLimit = 10

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 12

// Handlers serves the ledger over HTTP.
type Handlers struct {
	service  highscoreservice.Service
	logger   *slog.Logger
	tracer   trace.Tracer
	ledgerID string
	now      func() time.Time
}

// NewHandlers creates the HTTP handlers for ledgerID.
func NewHandlers(service highscoreservice.Service, ledgerID string, logger *slog.Logger, tracer trace.Tracer) *Handlers {
	return &Handlers{
		service:  service,
		logger:   logger,
		tracer:   tracer,
		ledgerID: ledgerID,
		now:      time.Now,
	}
}

type submitScoreRequest struct {
	Score json.Number `json:"score"`
}

type raiseResponse struct {
	Previous uint32    `json:"previous"`
	New      uint32    `json:"new"`
	RaisedAt time.Time `json:"raised_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleCreateRecord allocates the caller's record.
func (h *Handlers) HandleCreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HighscoreHTTP.CreateRecord")
	defer span.End()

	caller, _ := CallerFromContext(ctx)
	view, err := h.service.CreateRecord(ctx, caller)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/records/"+caller.String())
	writeJSON(w, http.StatusCreated, toRecordV1(view))
}

// HandleSubmitScore offers a candidate score for the record named in the path.
func (h *Handlers) HandleSubmitScore(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HighscoreHTTP.SubmitScore")
	defer span.End()

	player, ok := h.playerParam(w, r)
	if !ok {
		return
	}

	candidate, err := decodeScore(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, _ := CallerFromContext(ctx)
	res, err := h.service.SubmitScore(ctx, caller, player, candidate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, highscoreevents.ScoreSubmittedPayloadV1{
		Record:   toRecordV1(&res.Record),
		Previous: res.Previous,
		Raised:   res.Raised,
	})
}

// HandleGetRecord returns the record named in the path.
func (h *Handlers) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HighscoreHTTP.GetRecord")
	defer span.End()

	player, ok := h.playerParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetRecord(ctx, player)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordV1(view))
}

// HandleGetHistory lists the raises of the record named in the path.
func (h *Handlers) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HighscoreHTTP.GetHistory")
	defer span.End()

	player, ok := h.playerParam(w, r)
	if !ok {
		return
	}

	history, err := h.service.GetScoreHistory(ctx, player)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]raiseResponse, 0, len(history))
	for _, entry := range history {
		out = append(out, raiseResponse{Previous: entry.Previous, New: entry.New, RaisedAt: entry.RaisedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetHistoryChart renders the score progression as a PNG.
func (h *Handlers) HandleGetHistoryChart(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HighscoreHTTP.GetHistoryChart")
	defer span.End()

	player, ok := h.playerParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetRecord(ctx, player)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	history, err := h.service.GetScoreHistory(ctx, player)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	png, err := highscoreservice.GenerateScoreHistoryChart(*view, history, highscoreservice.DefaultChartPalette)
	if err != nil {
		h.writeServiceError(w, r, fmt.Errorf("failed to render chart: %w", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// HandleLeaderboard returns the ledger's best records.
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HighscoreHTTP.Leaderboard")
	defer span.End()

	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	views, err := h.service.ListTopRecords(ctx, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]highscoreevents.RecordV1, 0, len(views))
	for i := range views {
		out = append(out, toRecordV1(&views[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleLeaderboardExport returns the leaderboard as an xlsx workbook.
func (h *Handlers) HandleLeaderboardExport(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HighscoreHTTP.LeaderboardExport")
	defer span.End()

	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	views, err := h.service.ListTopRecords(ctx, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	data, err := highscoreservice.ExportLeaderboardXLSX(h.ledgerID, h.now(), views)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="leaderboard.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handlers) playerParam(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	player, err := identity.ParseIdentity(chi.URLParam(r, "player"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid player identity")
		return identity.Identity{}, false
	}
	return player, true
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultLeaderboardLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < highscoreservice.MinLeaderboardLimit {
		writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}

// decodeScore reads {"score": n} and rejects anything that is not an
// integer in [0, 2^32-1].
func decodeScore(body io.Reader) (uint32, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var req submitScoreRequest
	if err := dec.Decode(&req); err != nil {
		return 0, errors.New("body must be a JSON object with a score field")
	}
	if req.Score == "" {
		return 0, errors.New("score is required")
	}
	v, err := strconv.ParseUint(req.Score.String(), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("score must be an integer between 0 and %d", uint64(^uint32(0)))
	}
	return uint32(v), nil
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, highscoreservice.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, highscoreservice.ErrAlreadyExists):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, highscoreservice.ErrUnauthorized):
		writeJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrInvalidIdentity):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrUnauthenticated):
		writeJSONError(w, http.StatusUnauthorized, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "HTTP request failed",
			attr.String("method", r.Method),
			attr.String("path", r.URL.Path),
			attr.Error(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func toRecordV1(v *highscoreservice.ScoreRecordView) highscoreevents.RecordV1 {
	return highscoreevents.RecordV1{
		Address:   v.Address,
		Owner:     v.Owner,
		Score:     v.Score,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}
