package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/search"
)

const defaultBookmarkLimit = 20

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_k", query.TopK))
	response, err := s.engine.Query(r.Context(), query)
	if err != nil {
		var qe *search.QueryError
		switch {
		case errors.As(err, &qe):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, search.ErrNoIndex):
			s.respondError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("search failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// handleBookmarks lists the table of contents, or searches it when find is set.
func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	find := q.Get("find")
	if find == "" {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"bookmarks": nonNil(s.engine.Bookmarks())})
		return
	}
	fuzzy, _ := strconv.ParseBool(q.Get("fuzzy"))
	limit := defaultBookmarkLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	marks, err := s.engine.FindBookmarks(find, limit, fuzzy)
	if err != nil {
		s.logger.Error("bookmark search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"bookmarks": nonNil(marks)})
}

func (s *Server) handleClearIndex(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearIndex()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func nonNil(marks []models.Bookmark) []models.Bookmark {
	if marks == nil {
		return []models.Bookmark{}
	}
	return marks
}
