// Package feed assembles a user's timeline from their follow set.
package feed

import (
	"context"
	"time"

	"devfeed/internal/config"
	"devfeed/internal/database"
	"devfeed/internal/models"
	"devfeed/internal/utils"

	"github.com/rs/zerolog/log"
)

// FollowingSource yields the ids a user follows, most recently followed first.
type FollowingSource interface {
	FollowingSet(ctx context.Context, userID string) ([]string, error)
}

type Assembler struct {
	store     database.LedgerStore
	following FollowingSource
	cfg       config.FeedConfig
	metrics   *utils.MetricsCollector
}

func NewAssembler(store database.LedgerStore, following FollowingSource, cfg config.FeedConfig, metrics *utils.MetricsCollector) *Assembler {
	return &Assembler{store: store, following: following, cfg: cfg, metrics: metrics}
}

// GetFeed returns one page of posts by userID and the users they follow, newest
// first, with author metadata read from the current user records.
func (a *Assembler) GetFeed(ctx context.Context, userID string, page, pageSize int) (*models.FeedPage, error) {
	if userID == "" {
		return nil, utils.NewValidationError("user id is required")
	}
	if page < 1 {
		return nil, utils.NewValidationError("page must be at least 1")
	}
	if pageSize < 1 || pageSize > a.cfg.MaxPageSize {
		return nil, utils.NewValidationError("page size must be between 1 and %d", a.cfg.MaxPageSize)
	}

	start := time.Now()
	following, err := a.following.FollowingSet(ctx, userID)
	if err != nil {
		return nil, err
	}
	authors := SelectAuthors(userID, following, a.cfg.AuthorBatchLimit)
	if len(following)+1 > len(authors) {
		log.Debug().
			Str("userId", userID).
			Int("following", len(following)).
			Int("queried", len(authors)).
			Msg("follow set truncated to author batch limit")
	}

	// One extra row tells us whether another page exists.
	posts, err := a.store.QueryPosts(ctx, models.PostQuery{
		AuthorIDs: authors,
		Limit:     pageSize + 1,
		Offset:    (page - 1) * pageSize,
	})
	if err != nil {
		return nil, err
	}
	hasMore := len(posts) > pageSize
	if hasMore {
		posts = posts[:pageSize]
	}

	postIDs := make([]string, len(posts))
	authorIDs := make([]string, 0, len(authors))
	seen := make(map[string]bool, len(authors))
	for i, p := range posts {
		postIDs[i] = p.ID
		if !seen[p.AuthorID] {
			seen[p.AuthorID] = true
			authorIDs = append(authorIDs, p.AuthorID)
		}
	}

	users, err := a.store.GetUsers(ctx, authorIDs)
	if err != nil {
		return nil, err
	}
	liked, err := a.store.LikedPostIDs(ctx, userID, postIDs)
	if err != nil {
		return nil, err
	}

	items := make([]*models.FeedItem, len(posts))
	for i, p := range posts {
		summary := models.UnknownAuthor
		if u, ok := users[p.AuthorID]; ok {
			summary = u.Summary()
		}
		items[i] = &models.FeedItem{Post: p, User: summary, IsLiked: liked[p.ID]}
	}

	if a.metrics != nil {
		a.metrics.AddOperationLatency("get_feed", time.Since(start))
	}
	return &models.FeedPage{
		Posts:    items,
		Page:     page,
		PageSize: pageSize,
		HasMore:  hasMore,
		Authors:  authors,
	}, nil
}

// SelectAuthors returns the author set for a feed query: the caller first, then
// up to limit-1 followed users in the order given.
func SelectAuthors(userID string, following []string, limit int) []string {
	if limit < 1 {
		limit = 1
	}
	authors := make([]string, 0, min(limit, len(following)+1))
	authors = append(authors, userID)
	seen := map[string]bool{userID: true}
	for _, id := range following {
		if len(authors) >= limit {
			break
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		authors = append(authors, id)
	}
	return authors
}
