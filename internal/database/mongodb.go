// internal/database/mongodb.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devfeed/internal/models"
	"devfeed/internal/utils"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// mongoWriteConflict is the server code for a write conflict inside a transaction.
const mongoWriteConflict = 112

type MongoDB struct {
	Client   *mongo.Client
	Users    *mongo.Collection
	Posts    *mongo.Collection
	Comments *mongo.Collection
	Likes    *mongo.Collection
	Follows  *mongo.Collection
}

// UserDocument represents the MongoDB schema for a user
type UserDocument struct {
	ID             string    `bson:"_id"`
	Username       string    `bson:"username"`
	DisplayName    string    `bson:"displayName"`
	Bio            string    `bson:"bio"`
	Avatar         string    `bson:"avatar"`
	Level          string    `bson:"level"`
	LevelPoints    int       `bson:"levelPoints"`
	PostsCount     int       `bson:"postsCount"`
	FollowersCount int       `bson:"followersCount"`
	FollowingCount int       `bson:"followingCount"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

// PostDocument represents the MongoDB schema for a post.
type PostDocument struct {
	ID            string    `bson:"_id"`
	AuthorID      string    `bson:"authorId"`
	Content       string    `bson:"content"`
	ImageURL      string    `bson:"imageUrl"`
	Tags          []string  `bson:"tags"`
	IsAIGenerated bool      `bson:"isAIGenerated"`
	LikesCount    int       `bson:"likesCount"`
	CommentsCount int       `bson:"commentsCount"`
	CreatedAt     time.Time `bson:"createdAt"`
}

type CommentDocument struct {
	ID        string    `bson:"_id"`
	PostID    string    `bson:"postId"`
	AuthorID  string    `bson:"authorId"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"createdAt"`
}

// LikeDocument is keyed "<userId>_<postId>" so a second insert for the same pair fails.
type LikeDocument struct {
	ID            string    `bson:"_id"`
	UserID        string    `bson:"userId"`
	PostID        string    `bson:"postId"`
	AwardedPoints int       `bson:"awardedPoints"`
	CreatedAt     time.Time `bson:"createdAt"`
}

// FollowDocument is keyed "<followerId>_<followeeId>".
type FollowDocument struct {
	ID         string    `bson:"_id"`
	FollowerID string    `bson:"followerId"`
	FolloweeID string    `bson:"followingId"`
	CreatedAt  time.Time `bson:"createdAt"`
}

func NewMongoDB(ctx context.Context, uri, database string) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	log.Info().Str("database", database).Msg("Successfully connected to MongoDB!")

	db := client.Database(database)
	return &MongoDB{
		Client:   client,
		Users:    db.Collection("users"),
		Posts:    db.Collection("posts"),
		Comments: db.Collection("comments"),
		Likes:    db.Collection("likes"),
		Follows:  db.Collection("follows"),
	}, nil
}

func (m *MongoDB) Name() string { return "mongo" }

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// EnsureIndexes creates the unique username index and the feed/listing indexes.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{m.Users, mongo.IndexModel{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{m.Posts, mongo.IndexModel{Keys: bson.D{{Key: "authorId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		{m.Comments, mongo.IndexModel{Keys: bson.D{{Key: "postId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		{m.Likes, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "postId", Value: 1}}}},
		{m.Follows, mongo.IndexModel{Keys: bson.D{{Key: "followerId", Value: 1}, {Key: "createdAt", Value: -1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %v", idx.coll.Name(), err)
		}
	}
	return nil
}

// RunTransaction executes fn once inside a snapshot transaction. Unlike
// session.WithTransaction it never retries by itself, which keeps the retry
// bound in RunWithRetry.
func (m *MongoDB) RunTransaction(ctx context.Context, fn TxFunc) error {
	session, err := m.Client.StartSession()
	if err != nil {
		return classifyMongoError("start session", err)
	}
	defer session.EndSession(context.Background())

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := session.StartTransaction(txnOpts); err != nil {
		return classifyMongoError("start transaction", err)
	}

	sc := mongo.NewSessionContext(ctx, session)
	mtx := &mongoTx{db: m}
	if err := fn(sc, mtx); err != nil {
		_ = session.AbortTransaction(context.Background())
		return classifyMongoError("transaction", err)
	}
	if err := session.CommitTransaction(sc); err != nil {
		_ = session.AbortTransaction(context.Background())
		return classifyMongoError("commit transaction", err)
	}
	mtx.runHooks()
	return nil
}

// GetUser retrieves a user from MongoDB by their ID
func (m *MongoDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id}, id)
}

func (m *MongoDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"username": username}, username)
}

func (m *MongoDB) findUser(ctx context.Context, filter bson.M, key string) (*models.User, error) {
	var doc UserDocument
	err := m.Users.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewUserNotFoundError(key)
	}
	if err != nil {
		return nil, classifyMongoError("find user", err)
	}
	return doc.toModel(), nil
}

func (m *MongoDB) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	result := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	cursor, err := m.Users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, classifyMongoError("find users", err)
	}
	var docs []UserDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("decode users", err)
	}
	for i := range docs {
		result[docs[i].ID] = docs[i].toModel()
	}
	return result, nil
}

func (m *MongoDB) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.UpdatedAt = now
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	_, err := m.Users.InsertOne(ctx, userToDocument(user))
	if mongo.IsDuplicateKeyError(err) {
		return utils.NewAppError(utils.ErrDuplicate, "user already exists", err)
	}
	return classifyMongoError("save user", err)
}

func (m *MongoDB) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": time.Now()}
	if update.DisplayName != nil {
		set["displayName"] = *update.DisplayName
	}
	if update.Bio != nil {
		set["bio"] = *update.Bio
	}
	if update.Avatar != nil {
		set["avatar"] = *update.Avatar
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc UserDocument
	err := m.Users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewUserNotFoundError(id)
	}
	if err != nil {
		return nil, classifyMongoError("update profile", err)
	}
	return doc.toModel(), nil
}

func (m *MongoDB) FollowingEdges(ctx context.Context, userID string) ([]*models.FollowEdge, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "followingId", Value: -1}})
	cursor, err := m.Follows.Find(ctx, bson.M{"followerId": userID}, opts)
	if err != nil {
		return nil, classifyMongoError("find follow edges", err)
	}
	var docs []FollowDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("decode follow edges", err)
	}
	edges := make([]*models.FollowEdge, len(docs))
	for i, doc := range docs {
		edges[i] = &models.FollowEdge{FollowerID: doc.FollowerID, FolloweeID: doc.FolloweeID, CreatedAt: doc.CreatedAt}
	}
	return edges, nil
}

func (m *MongoDB) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return findPost(ctx, m.Posts, id)
}

func (m *MongoDB) QueryPosts(ctx context.Context, q models.PostQuery) ([]*models.Post, error) {
	if len(q.AuthorIDs) == 0 {
		return []*models.Post{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := m.Posts.Find(ctx, bson.M{"authorId": bson.M{"$in": q.AuthorIDs}}, opts)
	if err != nil {
		return nil, classifyMongoError("find posts", err)
	}
	var docs []PostDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("decode posts", err)
	}
	posts := make([]*models.Post, len(docs))
	for i := range docs {
		posts[i] = docs[i].toModel()
	}
	return posts, nil
}

func (m *MongoDB) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool)
	if len(postIDs) == 0 {
		return liked, nil
	}
	keys := make([]string, len(postIDs))
	for i, postID := range postIDs {
		keys[i] = models.LikeKey(userID, postID)
	}

	cursor, err := m.Likes.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, classifyMongoError("find likes", err)
	}
	var docs []LikeDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("decode likes", err)
	}
	for _, doc := range docs {
		liked[doc.PostID] = true
	}
	return liked, nil
}

func (m *MongoDB) ListComments(ctx context.Context, postID string, limit int) ([]*models.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.Comments.Find(ctx, bson.M{"postId": postID}, opts)
	if err != nil {
		return nil, classifyMongoError("find comments", err)
	}
	var docs []CommentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("decode comments", err)
	}
	comments := make([]*models.Comment, len(docs))
	for i, doc := range docs {
		comments[i] = &models.Comment{
			ID:        doc.ID,
			PostID:    doc.PostID,
			AuthorID:  doc.AuthorID,
			Content:   doc.Content,
			CreatedAt: doc.CreatedAt,
		}
	}
	return comments, nil
}

// mongoTx runs every call with the session context handed to the transaction body.
type mongoTx struct {
	db *MongoDB
	afterCommitHooks
}

func (t *mongoTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	return t.db.GetUser(ctx, id)
}

func (t *mongoTx) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return findPost(ctx, t.db.Posts, id)
}

func (t *mongoTx) FindLike(ctx context.Context, userID, postID string) (*models.Like, error) {
	var doc LikeDocument
	err := t.db.Likes.FindOne(ctx, bson.M{"_id": models.LikeKey(userID, postID)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, classifyMongoError("find like", err)
	}
	return &models.Like{UserID: doc.UserID, PostID: doc.PostID, AwardedPoints: doc.AwardedPoints, CreatedAt: doc.CreatedAt}, nil
}

func (t *mongoTx) InsertLike(ctx context.Context, like *models.Like) error {
	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now()
	}
	_, err := t.db.Likes.InsertOne(ctx, LikeDocument{
		ID:            models.LikeKey(like.UserID, like.PostID),
		UserID:        like.UserID,
		PostID:        like.PostID,
		AwardedPoints: like.AwardedPoints,
		CreatedAt:     like.CreatedAt,
	})
	return classifyMongoError("insert like", err)
}

func (t *mongoTx) DeleteLike(ctx context.Context, userID, postID string) error {
	result, err := t.db.Likes.DeleteOne(ctx, bson.M{"_id": models.LikeKey(userID, postID)})
	if err != nil {
		return classifyMongoError("delete like", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewAppError(utils.ErrConflict, "like no longer exists", nil)
	}
	return nil
}

func (t *mongoTx) FindFollow(ctx context.Context, followerID, followeeID string) (*models.FollowEdge, error) {
	var doc FollowDocument
	err := t.db.Follows.FindOne(ctx, bson.M{"_id": models.FollowKey(followerID, followeeID)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, classifyMongoError("find follow", err)
	}
	return &models.FollowEdge{FollowerID: doc.FollowerID, FolloweeID: doc.FolloweeID, CreatedAt: doc.CreatedAt}, nil
}

func (t *mongoTx) InsertFollow(ctx context.Context, edge *models.FollowEdge) error {
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}
	_, err := t.db.Follows.InsertOne(ctx, FollowDocument{
		ID:         models.FollowKey(edge.FollowerID, edge.FolloweeID),
		FollowerID: edge.FollowerID,
		FolloweeID: edge.FolloweeID,
		CreatedAt:  edge.CreatedAt,
	})
	return classifyMongoError("insert follow", err)
}

func (t *mongoTx) DeleteFollow(ctx context.Context, followerID, followeeID string) error {
	result, err := t.db.Follows.DeleteOne(ctx, bson.M{"_id": models.FollowKey(followerID, followeeID)})
	if err != nil {
		return classifyMongoError("delete follow", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewAppError(utils.ErrConflict, "follow edge no longer exists", nil)
	}
	return nil
}

func (t *mongoTx) InsertPost(ctx context.Context, post *models.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	_, err := t.db.Posts.InsertOne(ctx, postToDocument(post))
	return classifyMongoError("save post", err)
}

func (t *mongoTx) InsertComment(ctx context.Context, comment *models.Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	_, err := t.db.Comments.InsertOne(ctx, CommentDocument{
		ID:        comment.ID,
		PostID:    comment.PostID,
		AuthorID:  comment.AuthorID,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
	})
	return classifyMongoError("save comment", err)
}

func (t *mongoTx) IncrementUser(ctx context.Context, userID string, field models.UserCounter, delta int) error {
	if _, ok := userCounterColumns[field]; !ok {
		return utils.NewAppError(utils.ErrInternal, "unknown user counter: "+string(field), nil)
	}
	update := bson.M{
		"$inc": bson.M{string(field): delta},
		"$set": bson.M{"updatedAt": time.Now()},
	}
	result, err := t.db.Users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return classifyMongoError("increment user "+string(field), err)
	}
	if result.MatchedCount == 0 {
		return utils.NewUserNotFoundError(userID)
	}
	return nil
}

func (t *mongoTx) IncrementPost(ctx context.Context, postID string, field models.PostCounter, delta int) error {
	if _, ok := postCounterColumns[field]; !ok {
		return utils.NewAppError(utils.ErrInternal, "unknown post counter: "+string(field), nil)
	}
	result, err := t.db.Posts.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$inc": bson.M{string(field): delta}})
	if err != nil {
		return classifyMongoError("increment post "+string(field), err)
	}
	if result.MatchedCount == 0 {
		return utils.NewPostNotFoundError(postID)
	}
	return nil
}

func (t *mongoTx) SetUserLevel(ctx context.Context, userID string, tier models.Tier) error {
	update := bson.M{"$set": bson.M{"level": string(tier), "updatedAt": time.Now()}}
	result, err := t.db.Users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return classifyMongoError("update user level", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewUserNotFoundError(userID)
	}
	return nil
}

func findPost(ctx context.Context, coll *mongo.Collection, id string) (*models.Post, error) {
	var doc PostDocument
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewPostNotFoundError(id)
	}
	if err != nil {
		return nil, classifyMongoError("find post", err)
	}
	return doc.toModel(), nil
}

func userToDocument(u *models.User) *UserDocument {
	return &UserDocument{
		ID:             u.ID,
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		Bio:            u.Bio,
		Avatar:         u.Avatar,
		Level:          string(u.Level),
		LevelPoints:    u.LevelPoints,
		PostsCount:     u.PostsCount,
		FollowersCount: u.FollowersCount,
		FollowingCount: u.FollowingCount,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (doc *UserDocument) toModel() *models.User {
	return &models.User{
		ID:             doc.ID,
		Username:       doc.Username,
		DisplayName:    doc.DisplayName,
		Bio:            doc.Bio,
		Avatar:         doc.Avatar,
		Level:          models.Tier(doc.Level),
		LevelPoints:    doc.LevelPoints,
		PostsCount:     doc.PostsCount,
		FollowersCount: doc.FollowersCount,
		FollowingCount: doc.FollowingCount,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func postToDocument(p *models.Post) *PostDocument {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return &PostDocument{
		ID:            p.ID,
		AuthorID:      p.AuthorID,
		Content:       p.Content,
		ImageURL:      p.ImageURL,
		Tags:          tags,
		IsAIGenerated: p.IsAIGenerated,
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
		CreatedAt:     p.CreatedAt,
	}
}

func (doc *PostDocument) toModel() *models.Post {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	return &models.Post{
		ID:            doc.ID,
		AuthorID:      doc.AuthorID,
		Content:       doc.Content,
		ImageURL:      doc.ImageURL,
		Tags:          tags,
		IsAIGenerated: doc.IsAIGenerated,
		LikesCount:    doc.LikesCount,
		CommentsCount: doc.CommentsCount,
		CreatedAt:     doc.CreatedAt,
	}
}

// classifyMongoError maps driver failures onto the ledger error taxonomy.
func classifyMongoError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return utils.NewUnavailableError(operation, err)
	}
	if mongo.IsDuplicateKeyError(err) {
		return utils.NewAppError(utils.ErrConflict, operation+": fact already exists", err)
	}

	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		if labeled.HasErrorLabel("TransientTransactionError") {
			return utils.NewAppError(utils.ErrConflict, operation+": transient transaction error", err)
		}
		if labeled.HasErrorLabel("UnknownTransactionCommitResult") {
			return utils.NewUnavailableError(operation, err)
		}
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(mongoWriteConflict) {
		return utils.NewAppError(utils.ErrConflict, operation+": write conflict", err)
	}
	return utils.NewAppError(utils.ErrInternal, operation+" failed", err)
}
