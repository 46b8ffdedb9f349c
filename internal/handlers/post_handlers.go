package handlers

import (
	"net/http"

	"devfeed/internal/engagement"
	"devfeed/internal/engine"

	"github.com/go-chi/chi/v5"
)

func (s *Server) HandleCreatePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		var req engagement.CreatePostInput
		if !decodeJSON(w, r, &req) {
			return
		}

		result, ok := s.request(w, r, &engine.CreatePostMsg{UserID: userID, Input: req})
		if !ok {
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"post": result})
	}
}

// HandleFeed serves GET /api/posts/feed?page=&limit=.
func (s *Server) HandleFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		page, err := queryInt(r, "page", 1)
		if err != nil {
			writeError(w, err)
			return
		}
		limit, err := queryInt(r, "limit", s.Feed.DefaultPageSize)
		if err != nil {
			writeError(w, err)
			return
		}

		result, ok := s.request(w, r, &engine.GetFeedMsg{UserID: userID, Page: page, PageSize: limit})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleToggleLike() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		result, ok := s.request(w, r, &engine.ToggleLikeMsg{UserID: userID, PostID: chi.URLParam(r, "postID")})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
