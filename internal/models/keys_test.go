package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFollowKeyDoesNotCollideOnSeparator(t *testing.T) {
	assert.NotEqual(t, FollowKey("a_b", "c"), FollowKey("a", "b_c"))
	assert.NotEqual(t, FollowKey("", "a_b"), FollowKey("a", "b"))
	assert.Equal(t, FollowKey("alice", "bob"), FollowKey("alice", "bob"))
}

func TestLikeKeyDoesNotCollideOnSeparator(t *testing.T) {
	assert.NotEqual(t, LikeKey("u_1", "p"), LikeKey("u", "1_p"))
	assert.NotEqual(t, LikeKey("1:a", "b"), LikeKey("1", "a_b"))
}
