package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/verifyai/verifyai/internal/contentstore"
	"github.com/verifyai/verifyai/internal/database"
	"github.com/verifyai/verifyai/internal/models"
	"github.com/verifyai/verifyai/internal/pipeline"
)

// App holds the handler dependencies.
type App struct {
	Pipeline      *pipeline.Orchestrator
	Findings      *database.FindingsRepo
	Results       *database.ResultRepo
	MaxUploadSize int64
	Log           zerolog.Logger
}

type submitResponse struct {
	Digest string `json:"digest"`
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type verdictResponse struct {
	Status   string          `json:"status"`
	Verdict  *models.Verdict `json:"verdict,omitempty"`
	Findings json.RawMessage `json:"metadata_findings,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// SubmitHandler accepts a multipart upload and starts analysis. The digest
// is returned immediately; the verdict is fetched separately.
func (app *App) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	file, header, err := r.FormFile("media")
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "missing media file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(data) == 0 {
		app.writeError(w, http.StatusBadRequest, "empty file")
		return
	}

	declaredMIME := header.Header.Get("Content-Type")

	digest, runID, err := app.Pipeline.Submit(r.Context(), data, declaredMIME)
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		app.writeError(w, http.StatusUnprocessableEntity, "unsupported media format")
		return
	case errors.Is(err, contentstore.ErrUnavailable):
		app.writeError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
		return
	case err != nil:
		app.Log.Error().Err(err).Msg("submit failed")
		app.writeError(w, http.StatusInternalServerError, "submission failed")
		return
	}

	app.writeJSON(w, http.StatusAccepted, submitResponse{
		Digest: digest,
		RunID:  runID,
		Status: "analyzing",
	})
}

// VerdictHandler returns the latest verdict for a digest, a pending
// marker, or the reason verification was not possible.
func (app *App) VerdictHandler(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")

	verdict, err := app.Pipeline.Verdict(r.Context(), digest)
	switch {
	case errors.Is(err, pipeline.ErrPending):
		app.writeJSON(w, http.StatusAccepted, verdictResponse{Status: "pending"})
		return
	case errors.Is(err, pipeline.ErrNotFound):
		app.writeError(w, http.StatusNotFound, "unknown digest")
		return
	case errors.Is(err, pipeline.ErrNotVerifiable):
		app.writeJSON(w, http.StatusOK, verdictResponse{
			Status: "not_verifiable",
			Reason: err.Error(),
		})
		return
	case err != nil:
		app.Log.Error().Err(err).Str("digest", digest).Msg("verdict lookup failed")
		app.writeError(w, http.StatusInternalServerError, "verdict lookup failed")
		return
	}

	resp := verdictResponse{Status: "completed", Verdict: verdict}
	if findings, err := app.Findings.Get(r.Context(), digest); err == nil {
		if raw, err := json.Marshal(findings); err == nil {
			resp.Findings = raw
		}
	}

	app.writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	Digest   string            `json:"digest"`
	Verdicts []*models.Verdict `json:"verdicts"`
}

// HistoryHandler returns every verdict recorded for a digest, newest
// first. Old verdicts survive policy changes for audit.
func (app *App) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")

	history, err := app.Pipeline.History(r.Context(), digest)
	if errors.Is(err, pipeline.ErrNotFound) {
		app.writeError(w, http.StatusNotFound, "unknown digest")
		return
	}
	if err != nil {
		app.Log.Error().Err(err).Str("digest", digest).Msg("history lookup failed")
		app.writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if history == nil {
		history = []*models.Verdict{}
	}

	app.writeJSON(w, http.StatusOK, historyResponse{Digest: digest, Verdicts: history})
}

// ReanalyzeHandler starts a fresh analysis run for an existing artifact.
func (app *App) ReanalyzeHandler(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")

	runID, err := app.Pipeline.Reanalyze(r.Context(), digest)
	if errors.Is(err, pipeline.ErrNotFound) {
		app.writeError(w, http.StatusNotFound, "unknown digest")
		return
	}
	if err != nil {
		app.Log.Error().Err(err).Str("digest", digest).Msg("reanalyze failed")
		app.writeError(w, http.StatusInternalServerError, "reanalyze failed")
		return
	}

	app.writeJSON(w, http.StatusAccepted, submitResponse{
		Digest: digest,
		RunID:  runID,
		Status: "analyzing",
	})
}

func (app *App) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		app.Log.Error().Err(err).Msg("encoding response failed")
	}
}

func (app *App) writeError(w http.ResponseWriter, status int, message string) {
	app.writeJSON(w, status, errorResponse{Error: message})
}
