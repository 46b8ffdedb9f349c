package models

// UserCounter names an atomically incremented field on a user.
type UserCounter string

const (
	UserLevelPoints    UserCounter = "levelPoints"
	UserPostsCount     UserCounter = "postsCount"
	UserFollowersCount UserCounter = "followersCount"
	UserFollowingCount UserCounter = "followingCount"
)

// PostCounter names an atomically incremented field on a post.
type PostCounter string

const (
	PostLikesCount    PostCounter = "likesCount"
	PostCommentsCount PostCounter = "commentsCount"
)
