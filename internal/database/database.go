// internal/database/database.go
package database

import (
	"context"
	"fmt"

	"devfeed/internal/config"
	"devfeed/internal/models"
)

// TxFunc is the body of a ledger transaction. It may be executed more than
// once when the store reports a conflict, so it must not keep state between runs.
type TxFunc func(ctx context.Context, tx Tx) error

// Tx is the set of reads and writes allowed inside a ledger transaction.
// Every mutation made through a Tx commits or rolls back together.
type Tx interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)

	// FindLike and FindFollow return (nil, nil) when the fact does not exist.
	FindLike(ctx context.Context, userID, postID string) (*models.Like, error)
	InsertLike(ctx context.Context, like *models.Like) error
	DeleteLike(ctx context.Context, userID, postID string) error

	FindFollow(ctx context.Context, followerID, followeeID string) (*models.FollowEdge, error)
	InsertFollow(ctx context.Context, edge *models.FollowEdge) error
	DeleteFollow(ctx context.Context, followerID, followeeID string) error

	InsertPost(ctx context.Context, post *models.Post) error
	InsertComment(ctx context.Context, comment *models.Comment) error

	// Atomic counter updates. Callers never read-modify-write counters.
	IncrementUser(ctx context.Context, userID string, field models.UserCounter, delta int) error
	IncrementPost(ctx context.Context, postID string, field models.PostCounter, delta int) error

	SetUserLevel(ctx context.Context, userID string, tier models.Tier) error

	// AfterCommit queues fn to run once the transaction commits. Queued
	// functions are dropped when the attempt aborts or is retried.
	AfterCommit(fn func())
}

// LedgerStore defines the persistence operations the engagement core depends on.
// Implementations translate backend failures into CONFLICT or UNAVAILABLE AppErrors.
type LedgerStore interface {
	Name() string
	Close(ctx context.Context) error

	// RunTransaction executes fn once. A CONFLICT result means nothing was committed.
	RunTransaction(ctx context.Context, fn TxFunc) error

	// User methods
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error)

	// Graph methods
	FollowingEdges(ctx context.Context, userID string) ([]*models.FollowEdge, error)

	// Post methods
	GetPost(ctx context.Context, id string) (*models.Post, error)
	QueryPosts(ctx context.Context, query models.PostQuery) ([]*models.Post, error)
	LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)

	// Comment methods
	ListComments(ctx context.Context, postID string, limit int) ([]*models.Comment, error)
}

// NewStore opens the ledger store selected by cfg.Type.
func NewStore(ctx context.Context, cfg config.DatabaseConfig) (LedgerStore, error) {
	switch cfg.Type {
	case config.StoreMemory, "":
		return NewMemoryStore(), nil
	case config.StorePostgres:
		pg, err := NewPostgresDB(cfg.URI)
		if err != nil {
			return nil, err
		}
		if err := pg.InitializeTables(ctx); err != nil {
			pg.Close(ctx)
			return nil, err
		}
		return pg, nil
	case config.StoreMongo:
		m, err := NewMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			m.Close(ctx)
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Type)
	}
}
