package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strongroomhq/strongroom/pkg/reconcile"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// reconcileRequest is the optional body of the reconcile endpoint.
type reconcileRequest struct {
	Mode          types.JobMode `json:"mode,omitempty"`
	FromBlock     *int64        `json:"fromBlock,omitempty"`
	ToBlock       *int64        `json:"toBlock,omitempty"`
	FromTimestamp *time.Time    `json:"fromTimestamp,omitempty"`
	ToTimestamp   *time.Time    `json:"toTimestamp,omitempty"`
}

// handleReconcile opens a reconciliation job for the pair. An existing
// pending job is replaced by the new request; an existing running job is
// returned as-is with a 200.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := chi.URLParam(r, "address")
	chainAlias := chi.URLParam(r, "chainAlias")

	var req reconcileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "malformed request body")
		return
	}

	existing, err := s.reconcile.FindActiveJob(ctx, address, chainAlias)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if existing != nil {
		if existing.Status == types.JobStatusRunning {
			writeJSON(w, http.StatusOK, existing)
			return
		}
		// Losing the delete race to a claiming worker is fine; CreateJob
		// below then reports the conflict.
		if err := s.reconcile.DeleteJob(ctx, existing.ID); err != nil && !errors.Is(err, types.ErrJobNotFound) {
			s.renderError(w, r, err)
			return
		}
	}

	job, err := s.reconcile.CreateJob(ctx, reconcile.CreateJobInput{
		Address:       address,
		ChainAlias:    chainAlias,
		Mode:          req.Mode,
		FromBlock:     req.FromBlock,
		ToBlock:       req.ToBlock,
		FromTimestamp: req.FromTimestamp,
		ToTimestamp:   req.ToTimestamp,
	})
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", reconcile.DefaultListLimit)
	offset := queryInt(r, "offset", 0)

	page, err := s.reconcile.ListJobs(r.Context(), chi.URLParam(r, "address"), chi.URLParam(r, "chainAlias"), limit, offset)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	detail, err := s.reconcile.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// decodeBody unmarshals an optional JSON body. An absent body is fine; a
// malformed one is not.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
