// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"devfeed/internal/models"
	"devfeed/internal/utils"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Counter columns are looked up here and never built from caller input.
var userCounterColumns = map[models.UserCounter]string{
	models.UserLevelPoints:    "level_points",
	models.UserPostsCount:     "posts_count",
	models.UserFollowersCount: "followers_count",
	models.UserFollowingCount: "following_count",
}

var postCounterColumns = map[models.PostCounter]string{
	models.PostLikesCount:    "likes_count",
	models.PostCommentsCount: "comments_count",
}

const userColumns = `id, username, display_name, bio, avatar, level, level_points, posts_count, followers_count, following_count, created_at, updated_at`

const postColumns = `id, author_id, content, image_url, tags, is_ai_generated, likes_count, comments_count, created_at`

// postRow scans the tags array that models.Post keeps out of its db mapping.
type postRow struct {
	models.Post
	Tags pq.StringArray `db:"tags"`
}

func (r *postRow) toModel() *models.Post {
	post := r.Post
	post.Tags = []string(r.Tags)
	if post.Tags == nil {
		post.Tags = []string{}
	}
	return &post
}

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB *sqlx.DB
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Ping the database to verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	log.Info().Msg("Successfully connected to PostgreSQL!")

	return &PostgresDB{
		DB: db,
	}, nil
}

func (p *PostgresDB) Name() string { return "postgres" }

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	log.Info().Msg("Closing PostgreSQL connection...")
	return p.DB.Close()
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	statements := []struct {
		name  string
		query string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username VARCHAR(30) UNIQUE NOT NULL,
				display_name VARCHAR(100) NOT NULL DEFAULT '',
				bio TEXT NOT NULL DEFAULT '',
				avatar TEXT NOT NULL DEFAULT '',
				level VARCHAR(20) NOT NULL DEFAULT 'Newcomer',
				level_points INTEGER NOT NULL DEFAULT 0,
				posts_count INTEGER NOT NULL DEFAULT 0,
				followers_count INTEGER NOT NULL DEFAULT 0,
				following_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"posts", `
			CREATE TABLE IF NOT EXISTS posts (
				id TEXT PRIMARY KEY,
				author_id TEXT NOT NULL REFERENCES users(id),
				content TEXT NOT NULL,
				image_url TEXT NOT NULL DEFAULT '',
				tags TEXT[] NOT NULL DEFAULT '{}',
				is_ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
				likes_count INTEGER NOT NULL DEFAULT 0,
				comments_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"posts author index", `CREATE INDEX IF NOT EXISTS posts_author_created_idx ON posts (author_id, created_at DESC)`},
		{"comments", `
			CREATE TABLE IF NOT EXISTS comments (
				id TEXT PRIMARY KEY,
				post_id TEXT NOT NULL REFERENCES posts(id),
				author_id TEXT NOT NULL REFERENCES users(id),
				content TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"comments post index", `CREATE INDEX IF NOT EXISTS comments_post_created_idx ON comments (post_id, created_at DESC)`},
		{"likes", `
			CREATE TABLE IF NOT EXISTS likes (
				user_id TEXT NOT NULL REFERENCES users(id),
				post_id TEXT NOT NULL REFERENCES posts(id),
				awarded_points INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (user_id, post_id)
			)`},
		{"follows", `
			CREATE TABLE IF NOT EXISTS follows (
				follower_id TEXT NOT NULL REFERENCES users(id),
				followee_id TEXT NOT NULL REFERENCES users(id),
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (follower_id, followee_id),
				CHECK (follower_id <> followee_id)
			)`},
	}

	for _, stmt := range statements {
		if _, err := p.DB.ExecContext(ctx, stmt.query); err != nil {
			return fmt.Errorf("failed to create %s: %v", stmt.name, err)
		}
	}
	return nil
}

// RunTransaction runs fn inside a serializable transaction. Serialization
// failures surface as CONFLICT so the caller can re-run fn from the start.
func (p *PostgresDB) RunTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := p.DB.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classifyPostgresError("begin transaction", err)
	}
	defer tx.Rollback() // Rollback is ignored if tx is committed.

	ptx := &postgresTx{tx: tx}
	if err := fn(ctx, ptx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyPostgresError("commit transaction", err)
	}
	ptx.runHooks()
	return nil
}

// GetUser fetches a user by their ID.
func (p *PostgresDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	return getUser(ctx, p.DB, id)
}

func (p *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewUserNotFoundError(username)
		}
		return nil, classifyPostgresError("query user by username", err)
	}
	return &user, nil
}

// GetUsers batch-loads users for read-time joins. Missing ids are absent from the map.
func (p *PostgresDB) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	result := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInternal, "failed to build users query", err)
	}
	query = p.DB.Rebind(query) // Rebind ? to $1, $2, etc. for PostgreSQL

	var users []*models.User
	if err := p.DB.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, classifyPostgresError("query users", err)
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// CreateUser inserts a new profile row.
func (p *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.UpdatedAt = now
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :username, :display_name, :bio, :avatar, :level, :level_points, :posts_count, :followers_count, :following_count, :created_at, :updated_at)
	`
	_, err := p.DB.NamedExecContext(ctx, query, user)
	if err != nil {
		// Check for duplicate key violation (id or username)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return utils.NewAppError(utils.ErrDuplicate, fmt.Sprintf("user already exists: %v", pqErr.Constraint), err)
		}
		return classifyPostgresError("save user", err)
	}
	return nil
}

// UpdateProfile applies the non-nil fields of update and returns the stored row.
func (p *PostgresDB) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	query := `
		UPDATE users SET
			display_name = COALESCE($1, display_name),
			bio = COALESCE($2, bio),
			avatar = COALESCE($3, avatar),
			updated_at = NOW()
		WHERE id = $4
		RETURNING ` + userColumns

	var user models.User
	err := p.DB.GetContext(ctx, &user, query, update.DisplayName, update.Bio, update.Avatar, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewUserNotFoundError(id)
		}
		return nil, classifyPostgresError("update profile", err)
	}
	return &user, nil
}

// FollowingEdges lists who userID follows, most recently followed first.
func (p *PostgresDB) FollowingEdges(ctx context.Context, userID string) ([]*models.FollowEdge, error) {
	query := `
		SELECT follower_id, followee_id, created_at
		FROM follows
		WHERE follower_id = $1
		ORDER BY created_at DESC, followee_id DESC
	`
	edges := []*models.FollowEdge{}
	if err := p.DB.SelectContext(ctx, &edges, query, userID); err != nil {
		return nil, classifyPostgresError("query follow edges", err)
	}
	return edges, nil
}

func (p *PostgresDB) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return getPost(ctx, p.DB, id)
}

// QueryPosts returns posts by any of the given authors, newest first.
func (p *PostgresDB) QueryPosts(ctx context.Context, q models.PostQuery) ([]*models.Post, error) {
	if len(q.AuthorIDs) == 0 {
		return []*models.Post{}, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}

	query, args, err := sqlx.In(`
		SELECT `+postColumns+`
		FROM posts
		WHERE author_id IN (?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, q.AuthorIDs, limit, q.Offset)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInternal, "failed to build feed query", err)
	}
	query = p.DB.Rebind(query)

	var rows []*postRow
	if err := p.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classifyPostgresError("query posts", err)
	}

	posts := make([]*models.Post, len(rows))
	for i, r := range rows {
		posts[i] = r.toModel()
	}
	return posts, nil
}

func (p *PostgresDB) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool)
	if len(postIDs) == 0 {
		return liked, nil
	}

	query, args, err := sqlx.In(`SELECT post_id FROM likes WHERE user_id = ? AND post_id IN (?)`, userID, postIDs)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInternal, "failed to build likes query", err)
	}
	query = p.DB.Rebind(query)

	var ids []string
	if err := p.DB.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, classifyPostgresError("query likes", err)
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

// ListComments returns a post's comments, newest first.
func (p *PostgresDB) ListComments(ctx context.Context, postID string, limit int) ([]*models.Comment, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	query := `
		SELECT id, post_id, author_id, content, created_at
		FROM comments
		WHERE post_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	comments := []*models.Comment{}
	if err := p.DB.SelectContext(ctx, &comments, query, postID, limit); err != nil {
		return nil, classifyPostgresError("query comments", err)
	}
	return comments, nil
}

// postgresTx implements Tx on top of a serializable sqlx transaction.
type postgresTx struct {
	tx *sqlx.Tx
	afterCommitHooks
}

func (t *postgresTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	return getUser(ctx, t.tx, id)
}

func (t *postgresTx) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return getPost(ctx, t.tx, id)
}

func (t *postgresTx) FindLike(ctx context.Context, userID, postID string) (*models.Like, error) {
	var like models.Like
	err := t.tx.GetContext(ctx, &like,
		`SELECT user_id, post_id, awarded_points, created_at FROM likes WHERE user_id = $1 AND post_id = $2`,
		userID, postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPostgresError("check existing like", err)
	}
	return &like, nil
}

func (t *postgresTx) InsertLike(ctx context.Context, like *models.Like) error {
	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now()
	}
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO likes (user_id, post_id, awarded_points, created_at)
		VALUES (:user_id, :post_id, :awarded_points, :created_at)
	`, like)
	return classifyPostgresError("insert like", err)
}

func (t *postgresTx) DeleteLike(ctx context.Context, userID, postID string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM likes WHERE user_id = $1 AND post_id = $2`, userID, postID)
	if err != nil {
		return classifyPostgresError("delete like", err)
	}
	return expectOneRow(result, utils.NewAppError(utils.ErrConflict, "like no longer exists", nil))
}

func (t *postgresTx) FindFollow(ctx context.Context, followerID, followeeID string) (*models.FollowEdge, error) {
	var edge models.FollowEdge
	err := t.tx.GetContext(ctx, &edge,
		`SELECT follower_id, followee_id, created_at FROM follows WHERE follower_id = $1 AND followee_id = $2`,
		followerID, followeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPostgresError("check existing follow", err)
	}
	return &edge, nil
}

func (t *postgresTx) InsertFollow(ctx context.Context, edge *models.FollowEdge) error {
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO follows (follower_id, followee_id, created_at)
		VALUES (:follower_id, :followee_id, :created_at)
	`, edge)
	return classifyPostgresError("insert follow", err)
}

func (t *postgresTx) DeleteFollow(ctx context.Context, followerID, followeeID string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
	if err != nil {
		return classifyPostgresError("delete follow", err)
	}
	return expectOneRow(result, utils.NewAppError(utils.ErrConflict, "follow edge no longer exists", nil))
}

func (t *postgresTx) InsertPost(ctx context.Context, post *models.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		post.ID,
		post.AuthorID,
		post.Content,
		post.ImageURL,
		pq.Array(tags),
		post.IsAIGenerated,
		post.LikesCount,
		post.CommentsCount,
		post.CreatedAt,
	)
	return classifyPostgresError("save post", err)
}

func (t *postgresTx) InsertComment(ctx context.Context, comment *models.Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO comments (id, post_id, author_id, content, created_at)
		VALUES (:id, :post_id, :author_id, :content, :created_at)
	`, comment)
	return classifyPostgresError("save comment", err)
}

func (t *postgresTx) IncrementUser(ctx context.Context, userID string, field models.UserCounter, delta int) error {
	column, ok := userCounterColumns[field]
	if !ok {
		return utils.NewAppError(utils.ErrInternal, "unknown user counter: "+string(field), nil)
	}
	result, err := t.tx.ExecContext(ctx,
		`UPDATE users SET `+column+` = `+column+` + $1, updated_at = NOW() WHERE id = $2`,
		delta, userID)
	if err != nil {
		return classifyPostgresError("increment user "+column, err)
	}
	return expectOneRow(result, utils.NewUserNotFoundError(userID))
}

func (t *postgresTx) IncrementPost(ctx context.Context, postID string, field models.PostCounter, delta int) error {
	column, ok := postCounterColumns[field]
	if !ok {
		return utils.NewAppError(utils.ErrInternal, "unknown post counter: "+string(field), nil)
	}
	result, err := t.tx.ExecContext(ctx,
		`UPDATE posts SET `+column+` = `+column+` + $1 WHERE id = $2`,
		delta, postID)
	if err != nil {
		return classifyPostgresError("increment post "+column, err)
	}
	return expectOneRow(result, utils.NewPostNotFoundError(postID))
}

func (t *postgresTx) SetUserLevel(ctx context.Context, userID string, tier models.Tier) error {
	result, err := t.tx.ExecContext(ctx, `UPDATE users SET level = $1, updated_at = NOW() WHERE id = $2`, tier, userID)
	if err != nil {
		return classifyPostgresError("update user level", err)
	}
	return expectOneRow(result, utils.NewUserNotFoundError(userID))
}

func getUser(ctx context.Context, q sqlx.QueryerContext, id string) (*models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, q, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewUserNotFoundError(id)
		}
		return nil, classifyPostgresError("query user by id", err)
	}
	return &user, nil
}

func getPost(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Post, error) {
	var row postRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewPostNotFoundError(id)
		}
		return nil, classifyPostgresError("query post", err)
	}
	return row.toModel(), nil
}

func expectOneRow(result sql.Result, missing error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classifyPostgresError("rows affected", err)
	}
	if rowsAffected == 0 {
		return missing
	}
	return nil
}

// classifyPostgresError maps driver failures onto the ledger error taxonomy.
// AppErrors pass through untouched.
func classifyPostgresError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return utils.NewUnavailableError(operation, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "serialization_failure", "deadlock_detected":
			return utils.NewAppError(utils.ErrConflict, operation+": concurrent update", err)
		case "unique_violation":
			// Two transactions raced to create the same like or follow fact.
			return utils.NewAppError(utils.ErrConflict, operation+": fact already exists", err)
		case "query_canceled", "admin_shutdown", "cannot_connect_now":
			return utils.NewUnavailableError(operation, err)
		}
		if pqErr.Code.Class() == "08" { // connection_exception
			return utils.NewUnavailableError(operation, err)
		}
		return utils.NewAppError(utils.ErrInternal, operation+" failed", err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return utils.NewUnavailableError(operation, err)
	}
	return utils.NewAppError(utils.ErrInternal, operation+" failed", err)
}
