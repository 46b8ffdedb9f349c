package handlers

import (
	"context"
	"net/http"
)

type GeneratePostRequest struct {
	Prompt string `json:"prompt"`
	Type   string `json:"type"`
}

type HashtagsRequest struct {
	Content string `json:"content"`
}

type ImagePromptsRequest struct {
	PostContent string `json:"postContent"`
}

// Model calls get a longer budget than store-backed requests.
func (s *Server) aiContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 6*s.RequestTimeout)
}

func (s *Server) HandleGeneratePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GeneratePostRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ctx, cancel := s.aiContext(r)
		defer cancel()

		draft, err := s.Generator.GeneratePost(ctx, req.Prompt, req.Type)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

func (s *Server) HandleGenerateHashtags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HashtagsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ctx, cancel := s.aiContext(r)
		defer cancel()

		tags, err := s.Generator.GenerateHashtags(ctx, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"hashtags": tags})
	}
}

func (s *Server) HandleSuggestImagePrompts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImagePromptsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ctx, cancel := s.aiContext(r)
		defer cancel()

		prompts, err := s.Generator.SuggestImagePrompts(ctx, req.PostContent)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": prompts})
	}
}
