package models

import (
	"time"
)

type Post struct {
	ID            string    `json:"id" db:"id"`
	AuthorID      string    `json:"userId" db:"author_id"`
	Content       string    `json:"content" db:"content"`
	ImageURL      string    `json:"imageUrl" db:"image_url"`
	Tags          []string  `json:"tags" db:"-"`
	IsAIGenerated bool      `json:"isAIGenerated" db:"is_ai_generated"`
	LikesCount    int       `json:"likesCount" db:"likes_count"`
	CommentsCount int       `json:"commentsCount" db:"comments_count"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// PostQuery selects posts whose author is in AuthorIDs, newest first.
type PostQuery struct {
	AuthorIDs []string
	Limit     int
	Offset    int
}
