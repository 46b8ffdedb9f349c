package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"devfeed/internal/config"
	"devfeed/internal/database"
	"devfeed/internal/engagement"
	"devfeed/internal/models"
	"devfeed/internal/profiles"
	"devfeed/internal/social"
	"devfeed/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timeout = 5 * time.Second

func newTestEngine(t *testing.T) (*Engine, *utils.MetricsCollector) {
	t.Helper()
	metrics := utils.NewMetricsCollector()
	services := NewServices(database.NewMemoryStore(), nil, config.DefaultConfig(), metrics)
	e := NewEngine(actor.NewActorSystem(), services, 4, metrics)
	t.Cleanup(e.Stop)
	return e, metrics
}

func createProfile(t *testing.T, e *Engine, id string) *models.User {
	t.Helper()
	result, err := e.Request(&CreateProfileMsg{UserID: id, Input: profiles.CreateProfileInput{Username: id}}, timeout)
	require.NoError(t, err)
	return result.(*models.User)
}

func TestEngineScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	alice := createProfile(t, e, "alice")
	createProfile(t, e, "bob")
	assert.Equal(t, models.TierNewcomer, alice.Level)

	// Step 1: alice follows bob
	result, err := e.Request(&FollowMsg{FollowerID: "alice", TargetID: "bob"}, timeout)
	require.NoError(t, err)
	assert.True(t, result.(*social.FollowResult).Following)

	// Step 2: bob posts, alice likes and comments
	result, err = e.Request(&CreatePostMsg{UserID: "bob", Input: engagement.CreatePostInput{Content: "hello gophers"}}, timeout)
	require.NoError(t, err)
	post := result.(*models.FeedItem)

	result, err = e.Request(&ToggleLikeMsg{UserID: "alice", PostID: post.ID}, timeout)
	require.NoError(t, err)
	assert.True(t, result.(*engagement.LikeResult).Liked)

	_, err = e.Request(&AddCommentMsg{UserID: "alice", PostID: post.ID, Content: "welcome"}, timeout)
	require.NoError(t, err)

	// Step 3: alice's feed shows the post with her like
	result, err = e.Request(&GetFeedMsg{UserID: "alice", Page: 1, PageSize: 20}, timeout)
	require.NoError(t, err)
	page := result.(*models.FeedPage)
	require.Len(t, page.Posts, 1)
	assert.True(t, page.Posts[0].IsLiked)
	assert.Equal(t, 1, page.Posts[0].CommentsCount)
	assert.Equal(t, models.TierBeginner, page.Posts[0].User.Level)

	result, err = e.Request(&ListCommentsMsg{PostID: post.ID}, timeout)
	require.NoError(t, err)
	assert.Len(t, result.([]*models.CommentView), 1)

	result, err = e.Request(&GetUserByUsernameMsg{Username: "BOB"}, timeout)
	require.NoError(t, err)
	assert.Equal(t, 12, result.(*models.User).LevelPoints)

	result, err = e.Request(&RetierMsg{UserID: "bob"}, timeout)
	require.NoError(t, err)
	assert.Equal(t, models.TierBeginner, result.(*models.User).Level)

	result, err = e.Request(&FollowingMsg{UserID: "alice"}, timeout)
	require.NoError(t, err)
	following := result.([]*models.User)
	require.Len(t, following, 1)
	assert.Equal(t, "bob", following[0].Username)
}

func TestEngineReturnsAppErrors(t *testing.T) {
	e, metrics := newTestEngine(t)
	createProfile(t, e, "alice")

	_, err := e.Request(&FollowMsg{FollowerID: "alice", TargetID: "alice"}, timeout)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidOperation))

	_, err = e.Request(&GetProfileMsg{UserID: "nobody"}, timeout)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))

	_, err = e.Request(&CreateProfileMsg{UserID: "other", Input: profiles.CreateProfileInput{Username: "alice"}}, timeout)
	assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicate))

	name := "Alice"
	result, err := e.Request(&UpdateProfileMsg{UserID: "alice", Update: models.ProfileUpdate{DisplayName: &name}}, timeout)
	require.NoError(t, err)
	assert.Equal(t, "Alice", result.(*models.User).DisplayName)

	assert.Equal(t, float64(1), metrics.CounterTotal("devfeed_errors_total", "code", utils.ErrNotFound))
	assert.Equal(t, float64(5), metrics.CounterTotal("devfeed_requests_total", "", ""))
}

func TestEngineConcurrentLikes(t *testing.T) {
	e, _ := newTestEngine(t)
	createProfile(t, e, "author")
	result, err := e.Request(&CreatePostMsg{UserID: "author", Input: engagement.CreatePostInput{Content: "x"}}, timeout)
	require.NoError(t, err)
	postID := result.(*models.FeedItem).ID

	const likers = 40
	for i := 0; i < likers; i++ {
		createProfile(t, e, fmt.Sprintf("user%02d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < likers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Request(&ToggleLikeMsg{UserID: fmt.Sprintf("user%02d", i), PostID: postID}, timeout)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	result, err = e.Request(&GetProfileMsg{UserID: "author"}, timeout)
	require.NoError(t, err)
	assert.Equal(t, 10+likers, result.(*models.User).LevelPoints)
	assert.Equal(t, models.TierIntermediate, result.(*models.User).Level)
}

type slowMsg struct {
	Call
}

func TestWorkerHonoursDeadline(t *testing.T) {
	store := database.NewMemoryStore()
	w := &WorkerActor{services: NewServices(store, nil, config.DefaultConfig(), nil)}

	msg := &GetProfileMsg{UserID: "x"}
	msg.setCall(time.Now().Add(-time.Second), nil)
	ctx, cancel := msg.call().context()
	defer cancel()

	_, err := w.handle(ctx, msg)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnavailable))

	_, err = w.handle(context.Background(), &slowMsg{})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInternal))
}

func TestCallContextFollowsCallerCancellation(t *testing.T) {
	done := make(chan struct{})
	msg := &GetProfileMsg{UserID: "x"}
	msg.setCall(time.Now().Add(time.Minute), done)

	ctx, cancel := msg.call().context()
	defer cancel()
	require.NoError(t, ctx.Err())

	close(done)
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("worker context outlived the caller")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestRequestContextCancelledCallerIsUnavailable(t *testing.T) {
	e, metrics := newTestEngine(t)
	createProfile(t, e, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.RequestContext(ctx, &CreatePostMsg{UserID: "alice", Input: engagement.CreatePostInput{Content: "never written"}}, timeout)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnavailable))
	assert.Equal(t, 1.0, metrics.CounterTotal("devfeed_errors_total", "code", string(utils.ErrUnavailable)))

	result, err := e.Request(&GetProfileMsg{UserID: "alice"}, timeout)
	require.NoError(t, err)
	assert.Equal(t, 0, result.(*models.User).PostsCount)
}
