package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"cfsck/internal/api"
	"cfsck/internal/consistency"
)

type listFunc func(ctx context.Context, scope consistency.Scope) (map[int][]string, error)

func (s *Server) handleListMissing(w http.ResponseWriter, r *http.Request) {
	s.handleList(w, r, s.service.ListMissing)
}

func (s *Server) handleListUnassigned(w http.ResponseWriter, r *http.Request) {
	s.handleList(w, r, s.service.ListUnassigned)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, list listFunc) {
	var req api.ScopeRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	scope, ok := s.parseScopeReq(w, r, req.Scope)
	if !ok {
		return
	}

	results, err := list(r.Context(), scope)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse(results))
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	var req api.RepairRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if r.Header.Get("X-Confirm") != "true" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("repair requires X-Confirm: true header"), ErrCodeMissingRequired))
		return
	}
	scope, ok := s.parseScopeReq(w, r, req.Scope)
	if !ok {
		return
	}

	var mode consistency.FailureMode
	if req.FailureMode != "" {
		parsed, err := consistency.ParseFailureMode(req.FailureMode)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidMode))
			return
		}
		mode = parsed
	}

	s.withLimiter(w, r, s.repairLimiter, "repair", func() {
		service, err := s.serviceFor(mode)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		summary, err := service.Repair(r.Context(), scope, req.Policy)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.log().Info("repair finished",
			"scope", summary.Scope,
			"policy", summary.Policy,
			"contexts", summary.Contexts,
			"skipped", len(summary.Skipped),
		)
		s.writeJSON(w, http.StatusOK, api.RepairResponse{
			Scope:    summary.Scope,
			Policy:   summary.Policy,
			Contexts: summary.Contexts,
			Skipped:  summary.Skipped,
			Usage:    usageResponse(summary.Usage),
		})
	})
}

func (s *Server) parseScopeReq(w http.ResponseWriter, r *http.Request, raw string) (consistency.Scope, bool) {
	scope, err := consistency.ParseScope(raw)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidScope))
		return consistency.Scope{}, false
	}
	return scope, true
}

func listResponse(results map[int][]string) api.ListResponse {
	resp := api.ListResponse{Results: make(map[string][]string, len(results))}
	for id, blobs := range results {
		resp.Results[strconv.Itoa(id)] = blobs
	}
	return resp
}

func usageResponse(usage map[int]int64) map[string]int64 {
	if len(usage) == 0 {
		return nil
	}
	out := make(map[string]int64, len(usage))
	for id, used := range usage {
		out[strconv.Itoa(id)] = used
	}
	return out
}
