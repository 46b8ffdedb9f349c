// Package profiles manages user profile setup and lookup.
package profiles

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"devfeed/internal/database"
	"devfeed/internal/models"
	"devfeed/internal/utils"

	"github.com/rs/zerolog/log"
)

const (
	MaxDisplayNameLength = 50
	MaxBioLength         = 500
	MaxAvatarLength      = 500
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.]{3,30}$`)

type CreateProfileInput struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	Avatar      string `json:"avatar"`
}

type Service struct {
	store database.LedgerStore
}

func NewService(store database.LedgerStore) *Service {
	return &Service{store: store}
}

// NormalizeUsername lower-cases and trims a handle.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// CreateProfile sets up the profile for an authenticated identity. Every
// profile starts as a Newcomer with zeroed counters.
func (s *Service) CreateProfile(ctx context.Context, userID string, input CreateProfileInput) (*models.User, error) {
	if userID == "" {
		return nil, utils.NewValidationError("user id is required")
	}
	username := NormalizeUsername(input.Username)
	if !usernamePattern.MatchString(username) {
		return nil, utils.NewValidationError("username must be 3-30 characters of a-z, 0-9, '_' or '.'")
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = username
	}
	if err := checkLengths(&displayName, &input.Bio, &input.Avatar); err != nil {
		return nil, err
	}

	user := &models.User{
		ID:          userID,
		Username:    username,
		DisplayName: displayName,
		Bio:         strings.TrimSpace(input.Bio),
		Avatar:      strings.TrimSpace(input.Avatar),
		Level:       models.TierNewcomer,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	log.Info().Str("userId", userID).Str("username", username).Msg("profile created")
	return user, nil
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return s.store.GetUser(ctx, userID)
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, utils.NewValidationError("username is required")
	}
	return s.store.GetUserByUsername(ctx, username)
}

// UpdateProfile applies the provided fields only.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (*models.User, error) {
	if update.IsEmpty() {
		return nil, utils.NewValidationError("no profile fields to update")
	}
	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if name == "" {
			return nil, utils.NewValidationError("display name cannot be empty")
		}
		update.DisplayName = &name
	}
	if err := checkLengths(update.DisplayName, update.Bio, update.Avatar); err != nil {
		return nil, err
	}
	return s.store.UpdateProfile(ctx, userID, update)
}

func checkLengths(displayName, bio, avatar *string) error {
	if displayName != nil && utf8.RuneCountInString(*displayName) > MaxDisplayNameLength {
		return utils.NewValidationError("display name exceeds %d characters", MaxDisplayNameLength)
	}
	if bio != nil && utf8.RuneCountInString(*bio) > MaxBioLength {
		return utils.NewValidationError("bio exceeds %d characters", MaxBioLength)
	}
	if avatar != nil && len(*avatar) > MaxAvatarLength {
		return utils.NewValidationError("avatar reference exceeds %d characters", MaxAvatarLength)
	}
	return nil
}
