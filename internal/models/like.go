package models

import "time"

// Like is the engagement fact keyed by (UserID, PostID).
// AwardedPoints records what the like credited to the post author so an unlike reverses exactly that amount.
type Like struct {
	UserID        string    `json:"userId" db:"user_id"`
	PostID        string    `json:"postId" db:"post_id"`
	AwardedPoints int       `json:"awardedPoints" db:"awarded_points"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// LikeKey is the document id of a like fact.
func LikeKey(userID, postID string) string {
	return pairKey(userID, postID)
}
