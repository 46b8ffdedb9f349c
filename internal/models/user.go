package models

import (
	"time"
)

type User struct {
	ID             string    `json:"uid" db:"id"`
	Username       string    `json:"username" db:"username"`
	DisplayName    string    `json:"displayName" db:"display_name"`
	Bio            string    `json:"bio" db:"bio"`
	Avatar         string    `json:"avatar" db:"avatar"`
	Level          Tier      `json:"level" db:"level"`
	LevelPoints    int       `json:"levelPoints" db:"level_points"`
	PostsCount     int       `json:"postsCount" db:"posts_count"`
	FollowersCount int       `json:"followersCount" db:"followers_count"`
	FollowingCount int       `json:"followingCount" db:"following_count"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// AuthorSummary is the display metadata joined onto posts and comments at read time.
type AuthorSummary struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Level       Tier   `json:"level"`
}

func (u *User) Summary() AuthorSummary {
	return AuthorSummary{
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		Level:       u.Level,
	}
}

// ProfileUpdate carries optional profile edits; nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}

func (p ProfileUpdate) IsEmpty() bool {
	return p.DisplayName == nil && p.Bio == nil && p.Avatar == nil
}

// UnknownAuthor is joined onto content whose author profile no longer resolves.
var UnknownAuthor = AuthorSummary{
	Username:    "[unknown]",
	DisplayName: "Unknown user",
	Level:       TierNewcomer,
}
