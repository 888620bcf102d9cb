// Package api exposes the document store over HTTP.
//
// Routes (the collection is a catch-all path parameter):
//
//	POST   /v1/docs/*collection   store a document (JSON body)
//	GET    /v1/docs/*collection   list; ?id= fetches one row;
//	                              ?order=&dir=&page=&size= paginates
//	PATCH  /v1/docs/*collection   partial update {"set": {...}, "where": "..."}
//	DELETE /v1/docs/*collection   delete rows matching ?where=
//	GET    /health                liveness probe
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/flatbeddb/flatbed/core/docstore"
	"github.com/flatbeddb/flatbed/core/errors"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// updateRequest is the PATCH body.
type updateRequest struct {
	Set   docstore.Document `json:"set"`
	Where string            `json:"where"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	collection := collectionParam(ps)

	var doc docstore.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "request body is not a JSON object")
		return
	}

	id, err := s.store.Put(r.Context(), collection, doc)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"doc_id": id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	collection := collectionParam(ps)
	q := r.URL.Query()

	if id := q.Get("id"); id != "" {
		doc, err := s.store.Get(r.Context(), collection, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, doc)
		return
	}

	if order := q.Get("order"); order != "" {
		page, size, ok := paginationParams(w, q.Get("page"), q.Get("size"))
		if !ok {
			return
		}
		descending := strings.EqualFold(q.Get("dir"), "desc")
		docs, err := s.store.Query(r.Context(), collection, order, descending, page, size)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, docs)
		return
	}

	docs, err := s.store.List(r.Context(), collection)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	collection := collectionParam(ps)

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "request body is not a JSON object")
		return
	}

	n, err := s.store.Update(r.Context(), collection, req.Set, req.Where)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	collection := collectionParam(ps)

	n, err := s.store.Delete(r.Context(), collection, r.URL.Query().Get("where"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// collectionParam strips the leading slash httprouter keeps on catch-all
// parameters.
func collectionParam(ps httprouter.Params) string {
	return strings.TrimPrefix(ps.ByName("collection"), "/")
}

// paginationParams parses page/size query values, defaulting to page 1 of 50.
// Responds with 400 and returns ok=false on unparseable input; range checks
// belong to the store.
func paginationParams(w http.ResponseWriter, pageStr, sizeStr string) (page, size int, ok bool) {
	page, size = 1, 50
	var err error
	if pageStr != "" {
		if page, err = strconv.Atoi(pageStr); err != nil {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST", "page is not a number")
			return 0, 0, false
		}
	}
	if sizeStr != "" {
		if size, err = strconv.Atoi(sizeStr); err != nil {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST", "size is not a number")
			return 0, 0, false
		}
	}
	return page, size, true
}

// respondStoreError maps engine error kinds to HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, errors.ErrInvalidCondition),
		errors.Is(err, errors.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, errors.ErrSchemaConflict):
		respondError(w, http.StatusConflict, "SCHEMA_CONFLICT", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "STORAGE_FAILURE", "internal storage failure")
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	respondJSON(w, status, body)
}
