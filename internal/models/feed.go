package models

// FeedItem is a post joined with its author's metadata and the caller's like state.
type FeedItem struct {
	*Post
	User    AuthorSummary `json:"user"`
	IsLiked bool          `json:"isLiked"`
}

type FeedPage struct {
	Posts    []*FeedItem `json:"posts"`
	Page     int         `json:"page"`
	PageSize int         `json:"limit"`
	HasMore  bool        `json:"hasMore"`
	// Authors is the author set actually queried, caller first.
	Authors []string `json:"-"`
}
