// Package engagement records likes, comments and posts together with the
// counter and point changes they cause.
package engagement

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"devfeed/internal/database"
	"devfeed/internal/models"
	"devfeed/internal/reputation"
	"devfeed/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Point awards.
const (
	PointsHumanPost       = 10
	PointsAIPost          = 5
	PointsLikeReceived    = 1
	PointsCommentWritten  = 2
	PointsCommentReceived = 1
)

const (
	MaxPostLength    = 2000
	MaxCommentLength = 2000
	MaxTags          = 10
	MaxTagLength     = 50
)

type CreatePostInput struct {
	Content       string   `json:"content"`
	ImageURL      string   `json:"imageUrl"`
	Tags          []string `json:"tags"`
	IsAIGenerated bool     `json:"isAIGenerated"`
}

type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likesCount"`
}

type Ledger struct {
	store       database.LedgerStore
	reputation  *reputation.Engine
	metrics     *utils.MetricsCollector
	maxAttempts int
}

func NewLedger(store database.LedgerStore, rep *reputation.Engine, metrics *utils.MetricsCollector, maxAttempts int) *Ledger {
	return &Ledger{store: store, reputation: rep, metrics: metrics, maxAttempts: maxAttempts}
}

// ToggleLike likes the post if userID has not liked it yet and unlikes it otherwise.
// The points a like awarded are stored on the like so the unlike takes back exactly that.
func (l *Ledger) ToggleLike(ctx context.Context, userID, postID string) (*LikeResult, error) {
	if userID == "" || postID == "" {
		return nil, utils.NewValidationError("user id and post id are required")
	}

	defer l.observe("toggle_like", time.Now())
	var result *LikeResult
	err := database.RunWithRetry(ctx, l.store, l.maxAttempts, "toggle_like", l.metrics, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		post, err := tx.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		existing, err := tx.FindLike(ctx, userID, postID)
		if err != nil {
			return err
		}

		if existing != nil {
			if err := tx.DeleteLike(ctx, userID, postID); err != nil {
				return err
			}
			if err := tx.IncrementPost(ctx, postID, models.PostLikesCount, -1); err != nil {
				return err
			}
			if err := l.reputation.AwardPoints(ctx, tx, post.AuthorID, -existing.AwardedPoints); err != nil {
				return err
			}
			result = &LikeResult{Liked: false, LikesCount: post.LikesCount - 1}
			return nil
		}

		awarded := 0
		if post.AuthorID != userID {
			awarded = PointsLikeReceived
		}
		like := &models.Like{UserID: userID, PostID: postID, AwardedPoints: awarded, CreatedAt: time.Now()}
		if err := tx.InsertLike(ctx, like); err != nil {
			return err
		}
		if err := tx.IncrementPost(ctx, postID, models.PostLikesCount, 1); err != nil {
			return err
		}
		if err := l.reputation.AwardPoints(ctx, tx, post.AuthorID, awarded); err != nil {
			return err
		}
		result = &LikeResult{Liked: true, LikesCount: post.LikesCount + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("userId", userID).Str("postId", postID).Bool("liked", result.Liked).Msg("like toggled")
	return result, nil
}

// AddComment stores a comment, bumps the post's comment count and awards points
// to the commenter and, unless they are the same user, the post author.
func (l *Ledger) AddComment(ctx context.Context, userID, postID, content string) (*models.CommentView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.NewValidationError("comment content is required")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return nil, utils.NewValidationError("comment exceeds %d characters", MaxCommentLength)
	}
	if userID == "" || postID == "" {
		return nil, utils.NewValidationError("user id and post id are required")
	}

	defer l.observe("add_comment", time.Now())
	var view *models.CommentView
	err := database.RunWithRetry(ctx, l.store, l.maxAttempts, "add_comment", l.metrics, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		post, err := tx.GetPost(ctx, postID)
		if err != nil {
			return err
		}

		comment := &models.Comment{
			ID:        uuid.NewString(),
			PostID:    postID,
			AuthorID:  userID,
			Content:   content,
			CreatedAt: time.Now(),
		}
		if err := tx.InsertComment(ctx, comment); err != nil {
			return err
		}
		if err := tx.IncrementPost(ctx, postID, models.PostCommentsCount, 1); err != nil {
			return err
		}
		if err := l.reputation.AwardPoints(ctx, tx, userID, PointsCommentWritten); err != nil {
			return err
		}
		if post.AuthorID != userID {
			if err := l.reputation.AwardPoints(ctx, tx, post.AuthorID, PointsCommentReceived); err != nil {
				return err
			}
		}

		commenter, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		view = &models.CommentView{Comment: comment, User: commenter.Summary()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CreatePost stores a new post and credits its author.
func (l *Ledger) CreatePost(ctx context.Context, userID string, input CreatePostInput) (*models.FeedItem, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, utils.NewValidationError("post content is required")
	}
	if utf8.RuneCountInString(content) > MaxPostLength {
		return nil, utils.NewValidationError("post exceeds %d characters", MaxPostLength)
	}
	tags, err := NormalizeTags(input.Tags)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, utils.NewValidationError("user id is required")
	}

	points := PointsHumanPost
	if input.IsAIGenerated {
		points = PointsAIPost
	}

	defer l.observe("create_post", time.Now())
	var item *models.FeedItem
	err = database.RunWithRetry(ctx, l.store, l.maxAttempts, "create_post", l.metrics, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}

		post := &models.Post{
			ID:            uuid.NewString(),
			AuthorID:      userID,
			Content:       content,
			ImageURL:      strings.TrimSpace(input.ImageURL),
			Tags:          tags,
			IsAIGenerated: input.IsAIGenerated,
			CreatedAt:     time.Now(),
		}
		if err := tx.InsertPost(ctx, post); err != nil {
			return err
		}
		if err := tx.IncrementUser(ctx, userID, models.UserPostsCount, 1); err != nil {
			return err
		}
		if err := l.reputation.AwardPoints(ctx, tx, userID, points); err != nil {
			return err
		}

		author, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		item = &models.FeedItem{Post: post, User: author.Summary()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("userId", userID).Str("postId", item.ID).Bool("aiGenerated", input.IsAIGenerated).Msg("post created")
	return item, nil
}

// ListComments returns a post's comments newest first, each joined with its
// author's current metadata.
func (l *Ledger) ListComments(ctx context.Context, postID string, limit int) ([]*models.CommentView, error) {
	if _, err := l.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := l.store.ListComments(ctx, postID, limit)
	if err != nil {
		return nil, err
	}

	authorIDs := make([]string, 0, len(comments))
	seen := make(map[string]bool)
	for _, c := range comments {
		if !seen[c.AuthorID] {
			seen[c.AuthorID] = true
			authorIDs = append(authorIDs, c.AuthorID)
		}
	}
	authors, err := l.store.GetUsers(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	views := make([]*models.CommentView, len(comments))
	for i, c := range comments {
		summary := models.UnknownAuthor
		if u, ok := authors[c.AuthorID]; ok {
			summary = u.Summary()
		}
		views[i] = &models.CommentView{Comment: c, User: summary}
	}
	return views, nil
}

func (l *Ledger) observe(operation string, start time.Time) {
	if l.metrics != nil {
		l.metrics.AddOperationLatency(operation, time.Since(start))
	}
}

// NormalizeTags trims, drops leading '#', lower-cases and de-duplicates tags.
func NormalizeTags(raw []string) ([]string, error) {
	tags := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimLeft(strings.TrimSpace(t), "#"))
		if t == "" || seen[t] {
			continue
		}
		if utf8.RuneCountInString(t) > MaxTagLength {
			return nil, utils.NewValidationError("tag %q exceeds %d characters", t, MaxTagLength)
		}
		seen[t] = true
		tags = append(tags, t)
	}
	if len(tags) > MaxTags {
		return nil, utils.NewValidationError("at most %d tags are allowed", MaxTags)
	}
	return tags, nil
}
