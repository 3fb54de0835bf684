package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strongroomhq/strongroom/pkg/types"
	"github.com/strongroomhq/strongroom/pkg/workflow"
)

// verbEvents maps the user-facing action endpoints onto state-machine
// events. Every other event type is internal and has no HTTP route.
var verbEvents = map[string]types.EventType{
	"review":  types.EventStart,
	"confirm": types.EventConfirm,
	"approve": types.EventApprove,
	"reject":  types.EventReject,
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var input workflow.CreateInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "malformed request body")
		return
	}

	wf, err := s.workflows.Create(r.Context(), input)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflows.GetByID(r.Context(), chi.URLParam(r, "workflowID"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleWorkflowHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.workflows.GetHistory(r.Context(), chi.URLParam(r, "workflowID"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": events})
}

// handleWorkflowVerb applies one user action to the workflow. The optional
// body carries the event payload (reason, approvedBy and so on).
func (s *Server) handleWorkflowVerb(w http.ResponseWriter, r *http.Request) {
	event, ok := verbEvents[chi.URLParam(r, "verb")]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown workflow action")
		return
	}

	var payload types.EventPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "malformed request body")
		return
	}

	wf, err := s.workflows.Send(r.Context(), chi.URLParam(r, "workflowID"), event, payload, Actor(r.Context()))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}
