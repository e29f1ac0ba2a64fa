package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"propsync/models"
	"propsync/services"
)

// ImportRunner is the slice of the importer the HTTP layer drives.
type ImportRunner interface {
	Run(ctx context.Context, body []byte) (*models.ImportReport, error)
}

// RunLister reads recent run records for operators.
type RunLister interface {
	GetRecentImportRuns(ctx context.Context, limit int) ([]models.ImportRun, error)
}

// Pinger reports database liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// maxImportBody caps how much XML a caller can push through /import.
const maxImportBody = 50 << 20

const recentRunsLimit = 20

type Handlers struct {
	importer ImportRunner
	runs     RunLister
	db       Pinger
}

func NewHandlers(importer ImportRunner, runs RunLister, db Pinger) *Handlers {
	return &Handlers{importer: importer, runs: runs, db: db}
}

// Import runs the pipeline. A POST body carrying feed markup is imported
// as-is; otherwise the vendor URL is fetched.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Method == http.MethodPost && r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBody))
		if err != nil {
			respondError(w, http.StatusBadRequest, "read request body: "+err.Error())
			return
		}
		body = data
	}

	report, err := h.importer.Run(r.Context(), body)
	if err != nil {
		respondImportError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// respondImportError maps pipeline errors onto status codes. Anything not
// in the taxonomy is a plain 500.
func respondImportError(w http.ResponseWriter, err error) {
	var (
		acq     *services.AcquisitionError
		parse   *services.ParseError
		empty   *services.EmptyFeedError
		noValid *services.NoValidRecordsError
		store   *services.StorageError
	)

	switch {
	case errors.As(err, &acq):
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":     acq.Error(),
			"failed_at": acq.At,
		})
	case errors.As(err, &parse):
		respondError(w, http.StatusBadRequest, parse.Error())
	case errors.As(err, &empty):
		respondError(w, http.StatusNotFound, empty.Error())
	case errors.As(err, &noValid):
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  noValid.Error(),
			"errors": noValid.Errors,
		})
	case errors.As(err, &store):
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":      store.Error(),
			"elapsed_ms": store.Elapsed.Milliseconds(),
		})
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Runs(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondJSON(w, http.StatusOK, []models.ImportRun{})
		return
	}
	runs, err := h.runs.GetRecentImportRuns(r.Context(), recentRunsLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []models.ImportRun{}
	}
	respondJSON(w, http.StatusOK, runs)
}
