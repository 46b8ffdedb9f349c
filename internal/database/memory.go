package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"devfeed/internal/models"
	"devfeed/internal/utils"
)

// MemoryStore is an in-process LedgerStore. Transactions take the write lock
// for their whole run and undo their mutations if the body fails, so they
// never conflict.
type MemoryStore struct {
	mu sync.RWMutex

	users     map[string]*models.User
	usernames map[string]string // username -> user id
	posts     map[string]*models.Post
	byAuthor  map[string][]string // author id -> post ids
	comments  map[string][]*models.Comment
	likes     map[string]*models.Like
	following map[string]map[string]*models.FollowEdge // follower -> followee -> edge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*models.User),
		usernames: make(map[string]string),
		posts:     make(map[string]*models.Post),
		byAuthor:  make(map[string][]string),
		comments:  make(map[string][]*models.Comment),
		likes:     make(map[string]*models.Like),
		following: make(map[string]map[string]*models.FollowEdge),
	}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

func (m *MemoryStore) RunTransaction(ctx context.Context, fn TxFunc) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return utils.NewUnavailableError("transaction", ctxErr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	// A deadline that expired while the body ran still aborts the transaction.
	if ctxErr := ctx.Err(); ctxErr != nil {
		tx.rollback()
		return utils.NewUnavailableError("transaction", ctxErr)
	}
	tx.commit()
	return nil
}

// --- Reads ---

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := checkContext(ctx, "get user"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUser(id)
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := checkContext(ctx, "get user"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernames[username]
	if !ok {
		return nil, utils.NewUserNotFoundError(username)
	}
	return m.getUser(id)
}

func (m *MemoryStore) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	if err := checkContext(ctx, "get users"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			result[id] = copyUser(u)
		}
	}
	return result, nil
}

func (m *MemoryStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	if err := checkContext(ctx, "get post"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPost(id)
}

func (m *MemoryStore) FollowingEdges(ctx context.Context, userID string) ([]*models.FollowEdge, error) {
	if err := checkContext(ctx, "following edges"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	edges := make([]*models.FollowEdge, 0, len(m.following[userID]))
	for _, e := range m.following[userID] {
		cp := *e
		edges = append(edges, &cp)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].FolloweeID > edges[j].FolloweeID
		}
		return edges[i].CreatedAt.After(edges[j].CreatedAt)
	})
	return edges, nil
}

func (m *MemoryStore) QueryPosts(ctx context.Context, query models.PostQuery) ([]*models.Post, error) {
	if err := checkContext(ctx, "query posts"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool, len(query.AuthorIDs))
	var posts []*models.Post
	for _, authorID := range query.AuthorIDs {
		if seen[authorID] {
			continue
		}
		seen[authorID] = true
		for _, postID := range m.byAuthor[authorID] {
			posts = append(posts, m.posts[postID])
		}
	}
	sortPostsNewestFirst(posts)

	if query.Offset >= len(posts) {
		return []*models.Post{}, nil
	}
	posts = posts[query.Offset:]
	if query.Limit > 0 && len(posts) > query.Limit {
		posts = posts[:query.Limit]
	}

	result := make([]*models.Post, len(posts))
	for i, p := range posts {
		result[i] = copyPost(p)
	}
	return result, nil
}

func (m *MemoryStore) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	if err := checkContext(ctx, "liked posts"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	liked := make(map[string]bool)
	for _, postID := range postIDs {
		if _, ok := m.likes[models.LikeKey(userID, postID)]; ok {
			liked[postID] = true
		}
	}
	return liked, nil
}

func (m *MemoryStore) ListComments(ctx context.Context, postID string, limit int) ([]*models.Comment, error) {
	if err := checkContext(ctx, "list comments"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.comments[postID]
	result := make([]*models.Comment, 0, len(stored))
	// Stored in insertion order; newest first on the way out.
	for i := len(stored) - 1; i >= 0; i-- {
		cp := *stored[i]
		result = append(result, &cp)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// --- Writes outside transactions ---

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := checkContext(ctx, "create user"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return utils.NewAppError(utils.ErrDuplicate, "profile already exists", nil)
	}
	if _, taken := m.usernames[user.Username]; taken {
		return utils.NewAppError(utils.ErrDuplicate, "username already taken", nil)
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	m.users[user.ID] = copyUser(user)
	m.usernames[user.Username] = user.ID
	return nil
}

func (m *MemoryStore) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	if err := checkContext(ctx, "update profile"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, utils.NewUserNotFoundError(id)
	}
	if update.DisplayName != nil {
		u.DisplayName = *update.DisplayName
	}
	if update.Bio != nil {
		u.Bio = *update.Bio
	}
	if update.Avatar != nil {
		u.Avatar = *update.Avatar
	}
	u.UpdatedAt = time.Now()
	return copyUser(u), nil
}

func (m *MemoryStore) getUser(id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, utils.NewUserNotFoundError(id)
	}
	return copyUser(u), nil
}

func (m *MemoryStore) getPost(id string) (*models.Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, utils.NewPostNotFoundError(id)
	}
	return copyPost(p), nil
}

// memoryTx mutates the store in place while the write lock is held and
// records an inverse for every mutation.
type memoryTx struct {
	store *MemoryStore
	undo  []func()
	afterCommitHooks
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.hooks = nil
}

func (tx *memoryTx) commit() {
	tx.undo = nil
	tx.runHooks()
}

func (tx *memoryTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := checkContext(ctx, "get user"); err != nil {
		return nil, err
	}
	return tx.store.getUser(id)
}

func (tx *memoryTx) GetPost(ctx context.Context, id string) (*models.Post, error) {
	if err := checkContext(ctx, "get post"); err != nil {
		return nil, err
	}
	return tx.store.getPost(id)
}

func (tx *memoryTx) FindLike(ctx context.Context, userID, postID string) (*models.Like, error) {
	if err := checkContext(ctx, "find like"); err != nil {
		return nil, err
	}
	like, ok := tx.store.likes[models.LikeKey(userID, postID)]
	if !ok {
		return nil, nil
	}
	cp := *like
	return &cp, nil
}

func (tx *memoryTx) InsertLike(ctx context.Context, like *models.Like) error {
	if err := checkContext(ctx, "insert like"); err != nil {
		return err
	}
	key := models.LikeKey(like.UserID, like.PostID)
	if _, exists := tx.store.likes[key]; exists {
		return utils.NewAppError(utils.ErrConflict, "like already exists", nil)
	}
	cp := *like
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	tx.store.likes[key] = &cp
	tx.undo = append(tx.undo, func() { delete(tx.store.likes, key) })
	return nil
}

func (tx *memoryTx) DeleteLike(ctx context.Context, userID, postID string) error {
	if err := checkContext(ctx, "delete like"); err != nil {
		return err
	}
	key := models.LikeKey(userID, postID)
	prev, exists := tx.store.likes[key]
	if !exists {
		return utils.NewAppError(utils.ErrConflict, "like no longer exists", nil)
	}
	delete(tx.store.likes, key)
	tx.undo = append(tx.undo, func() { tx.store.likes[key] = prev })
	return nil
}

func (tx *memoryTx) FindFollow(ctx context.Context, followerID, followeeID string) (*models.FollowEdge, error) {
	if err := checkContext(ctx, "find follow"); err != nil {
		return nil, err
	}
	edge, ok := tx.store.following[followerID][followeeID]
	if !ok {
		return nil, nil
	}
	cp := *edge
	return &cp, nil
}

func (tx *memoryTx) InsertFollow(ctx context.Context, edge *models.FollowEdge) error {
	if err := checkContext(ctx, "insert follow"); err != nil {
		return err
	}
	followees, ok := tx.store.following[edge.FollowerID]
	if !ok {
		followees = make(map[string]*models.FollowEdge)
		tx.store.following[edge.FollowerID] = followees
	}
	if _, exists := followees[edge.FolloweeID]; exists {
		return utils.NewAppError(utils.ErrConflict, "follow edge already exists", nil)
	}
	cp := *edge
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	followees[edge.FolloweeID] = &cp
	tx.undo = append(tx.undo, func() { delete(followees, edge.FolloweeID) })
	return nil
}

func (tx *memoryTx) DeleteFollow(ctx context.Context, followerID, followeeID string) error {
	if err := checkContext(ctx, "delete follow"); err != nil {
		return err
	}
	followees := tx.store.following[followerID]
	prev, exists := followees[followeeID]
	if !exists {
		return utils.NewAppError(utils.ErrConflict, "follow edge no longer exists", nil)
	}
	delete(followees, followeeID)
	tx.undo = append(tx.undo, func() { followees[followeeID] = prev })
	return nil
}

func (tx *memoryTx) InsertPost(ctx context.Context, post *models.Post) error {
	if err := checkContext(ctx, "insert post"); err != nil {
		return err
	}
	s := tx.store
	if _, exists := s.posts[post.ID]; exists {
		return utils.NewAppError(utils.ErrDuplicate, "post already exists", nil)
	}
	cp := copyPost(post)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.posts[post.ID] = cp
	s.byAuthor[post.AuthorID] = append(s.byAuthor[post.AuthorID], post.ID)
	tx.undo = append(tx.undo, func() {
		delete(s.posts, post.ID)
		ids := s.byAuthor[post.AuthorID]
		s.byAuthor[post.AuthorID] = ids[:len(ids)-1]
	})
	return nil
}

func (tx *memoryTx) InsertComment(ctx context.Context, comment *models.Comment) error {
	if err := checkContext(ctx, "insert comment"); err != nil {
		return err
	}
	s := tx.store
	cp := *comment
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.comments[comment.PostID] = append(s.comments[comment.PostID], &cp)
	tx.undo = append(tx.undo, func() {
		list := s.comments[comment.PostID]
		s.comments[comment.PostID] = list[:len(list)-1]
	})
	return nil
}

func (tx *memoryTx) IncrementUser(ctx context.Context, userID string, field models.UserCounter, delta int) error {
	if err := checkContext(ctx, "increment user"); err != nil {
		return err
	}
	u, ok := tx.store.users[userID]
	if !ok {
		return utils.NewUserNotFoundError(userID)
	}
	var counter *int
	switch field {
	case models.UserLevelPoints:
		counter = &u.LevelPoints
	case models.UserPostsCount:
		counter = &u.PostsCount
	case models.UserFollowersCount:
		counter = &u.FollowersCount
	case models.UserFollowingCount:
		counter = &u.FollowingCount
	default:
		return utils.NewAppError(utils.ErrInternal, "unknown user counter: "+string(field), nil)
	}
	*counter += delta
	tx.undo = append(tx.undo, func() { *counter -= delta })
	return nil
}

func (tx *memoryTx) IncrementPost(ctx context.Context, postID string, field models.PostCounter, delta int) error {
	if err := checkContext(ctx, "increment post"); err != nil {
		return err
	}
	p, ok := tx.store.posts[postID]
	if !ok {
		return utils.NewPostNotFoundError(postID)
	}
	var counter *int
	switch field {
	case models.PostLikesCount:
		counter = &p.LikesCount
	case models.PostCommentsCount:
		counter = &p.CommentsCount
	default:
		return utils.NewAppError(utils.ErrInternal, "unknown post counter: "+string(field), nil)
	}
	*counter += delta
	tx.undo = append(tx.undo, func() { *counter -= delta })
	return nil
}

func (tx *memoryTx) SetUserLevel(ctx context.Context, userID string, tier models.Tier) error {
	if err := checkContext(ctx, "set user level"); err != nil {
		return err
	}
	u, ok := tx.store.users[userID]
	if !ok {
		return utils.NewUserNotFoundError(userID)
	}
	prev := u.Level
	u.Level = tier
	tx.undo = append(tx.undo, func() { u.Level = prev })
	return nil
}

func checkContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return utils.NewUnavailableError(operation, err)
	}
	return nil
}

func copyUser(u *models.User) *models.User {
	cp := *u
	return &cp
}

func copyPost(p *models.Post) *models.Post {
	cp := *p
	if p.Tags != nil {
		cp.Tags = append([]string(nil), p.Tags...)
	}
	return &cp
}

func sortPostsNewestFirst(posts []*models.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
