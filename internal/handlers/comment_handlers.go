package handlers

import (
	"net/http"

	"devfeed/internal/engine"

	"github.com/go-chi/chi/v5"
)

// CreateCommentRequest represents a request to comment on a post
type CreateCommentRequest struct {
	Content string `json:"content"`
}

func (s *Server) HandleAddComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		var req CreateCommentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		result, ok := s.request(w, r, &engine.AddCommentMsg{
			UserID:  userID,
			PostID:  chi.URLParam(r, "postID"),
			Content: req.Content,
		})
		if !ok {
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"comment": result})
	}
}

// HandleListComments returns a post's comments, newest first.
func (s *Server) HandleListComments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			writeError(w, err)
			return
		}
		result, ok := s.request(w, r, &engine.ListCommentsMsg{PostID: chi.URLParam(r, "postID"), Limit: limit})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"comments": result})
	}
}
