package server

import (
	"fmt"
	"net/http"
	"strings"

	"cfsck/internal/api"
	"cfsck/internal/configdb"
	"cfsck/internal/models"
)

func (s *Server) handleListFilestores(w http.ResponseWriter, r *http.Request) {
	filestores, err := s.registry.ListFilestores(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := make([]api.FilestoreResponse, 0, len(filestores))
	for _, fs := range filestores {
		resp = append(resp, filestoreResponse(fs))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterFilestore(w http.ResponseWriter, r *http.Request) {
	var req api.FilestoreRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if _, _, err := models.ParseFilestoreURI(req.URI); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidArgument))
		return
	}
	if req.MaxContexts < 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("max_contexts must be >= 0"), ErrCodeInvalidArgument))
		return
	}

	fs := &models.Filestore{URI: req.URI, MaxContexts: req.MaxContexts}
	if err := s.registry.RegisterFilestore(r.Context(), fs); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log().Info("filestore registered", "filestore_id", fs.ID, "uri", fs.URI)
	s.writeJSON(w, http.StatusCreated, filestoreResponse(*fs))
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	databases, err := s.registry.ListDatabases(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := make([]api.DatabaseResponse, 0, len(databases))
	for _, db := range databases {
		resp = append(resp, databaseResponse(db))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterDatabase(w http.ResponseWriter, r *http.Request) {
	var req api.DatabaseRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Path = strings.TrimSpace(req.Path)
	if req.Name == "" || req.Path == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("name and path are required"), ErrCodeMissingRequired))
		return
	}

	db := &models.Database{Name: req.Name, Path: req.Path}
	if err := s.registry.RegisterDatabase(r.Context(), db); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log().Info("database registered", "database_id", db.ID, "name", db.Name)
	s.writeJSON(w, http.StatusCreated, databaseResponse(*db))
}

func (s *Server) handleListContexts(w http.ResponseWriter, r *http.Request) {
	filestoreID, err := queryInt(r, "filestore")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	databaseID, err := queryInt(r, "database")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	contexts, err := s.registry.ListContexts(r.Context(), configdb.ContextFilter{FilestoreID: filestoreID, DatabaseID: databaseID})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := make([]api.ContextResponse, 0, len(contexts))
	for _, c := range contexts {
		resp = append(resp, contextResponse(c))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterContext(w http.ResponseWriter, r *http.Request) {
	var req api.ContextRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("name is required"), ErrCodeMissingRequired))
		return
	}
	if req.ID < 0 || req.FilestoreID <= 0 || req.DatabaseID <= 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("filestore_id and database_id must be positive"), ErrCodeInvalidArgument))
		return
	}

	c := &models.Context{
		ID:          req.ID,
		Name:        req.Name,
		FilestoreID: req.FilestoreID,
		DatabaseID:  req.DatabaseID,
		Enabled:     !req.Disabled,
	}
	if err := s.registry.RegisterContext(r.Context(), c); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log().Info("context registered", "context_id", c.ID, "filestore_id", c.FilestoreID, "database_id", c.DatabaseID)
	s.writeJSON(w, http.StatusCreated, contextResponse(*c))
}

func filestoreResponse(fs models.Filestore) api.FilestoreResponse {
	return api.FilestoreResponse{ID: fs.ID, URI: fs.URI, MaxContexts: fs.MaxContexts, CreatedAt: fs.CreatedAt}
}

func databaseResponse(db models.Database) api.DatabaseResponse {
	return api.DatabaseResponse{ID: db.ID, Name: db.Name, Path: db.Path, CreatedAt: db.CreatedAt}
}

func contextResponse(c models.Context) api.ContextResponse {
	return api.ContextResponse{
		ID:          c.ID,
		Name:        c.Name,
		FilestoreID: c.FilestoreID,
		DatabaseID:  c.DatabaseID,
		Enabled:     c.Enabled,
		CreatedAt:   c.CreatedAt,
	}
}
