package models

import "time"

// FollowEdge means FollowerID receives FolloweeID's posts in their feed.
type FollowEdge struct {
	FollowerID string    `json:"followerId" db:"follower_id"`
	FolloweeID string    `json:"followingId" db:"followee_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// FollowKey is the document id of a follow edge.
func FollowKey(followerID, followeeID string) string {
	return pairKey(followerID, followeeID)
}
