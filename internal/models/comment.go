package models

import (
	"time"
)

type Comment struct {
	ID        string    `json:"id" db:"id"`
	PostID    string    `json:"postId" db:"post_id"`
	AuthorID  string    `json:"userId" db:"author_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// CommentView is a comment joined with its author's current display metadata.
type CommentView struct {
	*Comment
	User AuthorSummary `json:"user"`
}
