package handlers

import (
	"net/http"

	"devfeed/internal/engine"
	"devfeed/internal/models"
	"devfeed/internal/profiles"

	"github.com/go-chi/chi/v5"
)

// HandleCreateProfile sets up the profile of the authenticated identity.
func (s *Server) HandleCreateProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		var req profiles.CreateProfileInput
		if !decodeJSON(w, r, &req) {
			return
		}

		result, ok := s.request(w, r, &engine.CreateProfileMsg{UserID: userID, Input: req})
		if !ok {
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"user": result})
	}
}

func (s *Server) HandleGetProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		result, ok := s.request(w, r, &engine.GetProfileMsg{UserID: userID})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": result})
	}
}

func (s *Server) HandleGetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, ok := s.request(w, r, &engine.GetUserByUsernameMsg{Username: chi.URLParam(r, "username")})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": result})
	}
}

// HandleUpdateProfile applies the fields present in the body.
func (s *Server) HandleUpdateProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		var req models.ProfileUpdate
		if !decodeJSON(w, r, &req) {
			return
		}

		result, ok := s.request(w, r, &engine.UpdateProfileMsg{UserID: userID, Update: req})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": result})
	}
}

// HandleFollow toggles the caller's follow of {username}.
func (s *Server) HandleFollow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		target, ok := s.lookupUser(w, r, chi.URLParam(r, "username"))
		if !ok {
			return
		}

		result, ok := s.request(w, r, &engine.FollowMsg{FollowerID: userID, TargetID: target.ID})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleFollowing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.lookupUser(w, r, chi.URLParam(r, "username"))
		if !ok {
			return
		}
		result, ok := s.request(w, r, &engine.FollowingMsg{UserID: user.ID})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"following": result})
	}
}

func (s *Server) lookupUser(w http.ResponseWriter, r *http.Request, username string) (*models.User, bool) {
	result, ok := s.request(w, r, &engine.GetUserByUsernameMsg{Username: username})
	if !ok {
		return nil, false
	}
	return result.(*models.User), true
}

// HandleRetier recomputes the caller's tier from their points.
func (s *Server) HandleRetier() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		result, ok := s.request(w, r, &engine.RetierMsg{UserID: userID})
		if !ok {
			return
		}
		user := result.(*models.User)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"level":       user.Level,
			"levelPoints": user.LevelPoints,
		})
	}
}
