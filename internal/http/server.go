package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shankarkarande/farmvibes-ai/internal/log"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/shankarkarande/farmvibes-ai/pkg/service"
	"github.com/shankarkarande/farmvibes-ai/pkg/storage"
)

type submitRequest struct {
	Workflow   string                 `json:"workflow"`
	Inputs     map[string]interface{} `json:"inputs"`
	Parameters map[string]interface{} `json:"parameters"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler builds the HTTP routing for the run API.
func NewHandler(svc *service.WorkflowService) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v0/runs", runsHandler(svc))
	mux.HandleFunc("/v0/runs/", runHandler(svc))
	return mux
}

// StartServer serves the run API on the given port, blocking until the
// listener fails.
func StartServer(port string, svc *service.WorkflowService) error {
	log.GetLogger().Infof("Starting FarmVibes server on :%s", port)
	return http.ListenAndServe(":"+port, NewHandler(svc))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "FarmVibes server is running")
}

func runsHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listRunsHTTP(w, r, svc)
		case http.MethodPost:
			submitRunHTTP(w, r, svc)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// runHandler serves /v0/runs/{id} and /v0/runs/{id}/cancel.
func runHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v0/runs/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
			getRunHTTP(w, r, svc, parts[0])
		case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
			cancelRunHTTP(w, r, svc, parts[0])
		case len(parts) == 2 && parts[1] == "outputs" && r.Method == http.MethodGet:
			getOutputsHTTP(w, r, svc, parts[0])
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	}
}

func submitRunHTTP(w http.ResponseWriter, r *http.Request, svc *service.WorkflowService) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Workflow == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing 'workflow' field"})
		return
	}
	id, err := svc.Submit(req.Workflow, req.Inputs, req.Parameters)
	if err != nil {
		log.GetLogger().Errorf("Failed to submit run: %v", err)
		writeJSON(w, submitStatusCode(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{ID: id})
}

func listRunsHTTP(w http.ResponseWriter, _ *http.Request, svc *service.WorkflowService) {
	runs, err := svc.ListRuns()
	if err != nil {
		log.GetLogger().Errorf("Failed to list runs: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func getRunHTTP(w http.ResponseWriter, _ *http.Request, svc *service.WorkflowService, id string) {
	run, err := svc.Status(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
			return
		}
		log.GetLogger().Errorf("Failed to get run %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func getOutputsHTTP(w http.ResponseWriter, _ *http.Request, svc *service.WorkflowService, id string) {
	outputs, err := svc.Outputs(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
			return
		}
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, outputs)
}

func cancelRunHTTP(w http.ResponseWriter, _ *http.Request, svc *service.WorkflowService, id string) {
	if err := svc.Cancel(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
			return
		}
		log.GetLogger().Errorf("Failed to cancel run %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// submitStatusCode maps submission failures onto HTTP codes. Spec and
// binding problems are the caller's fault.
func submitStatusCode(err error) int {
	switch models.KindOf(err) {
	case models.ErrMalformedSpec, models.ErrUnknownPortReference, models.ErrDuplicateAlias,
		models.ErrUnboundParameter, models.ErrCyclicParameterReference,
		models.ErrCyclicGraph, models.ErrUnreachableSink:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
