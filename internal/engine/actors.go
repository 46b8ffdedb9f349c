package engine

import (
	"context"
	"time"

	"devfeed/internal/engagement"
	"devfeed/internal/models"
	"devfeed/internal/profiles"
	"devfeed/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog/log"
)

// Message is implemented by every request the workers understand. The deadline
// and done channel are stamped by Engine.RequestContext and bound all store
// calls made for it.
type Message interface {
	setCall(deadline time.Time, done <-chan struct{})
	call() Call
}

// Call carries the deadline of a request and the caller's cancellation.
type Call struct {
	Deadline time.Time
	Done     <-chan struct{}
}

func (c *Call) setCall(d time.Time, done <-chan struct{}) {
	c.Deadline = d
	c.Done = done
}

func (c *Call) call() Call { return *c }

// context derives the worker-side context. It ends at the deadline or when
// the caller goes away, whichever comes first.
func (c Call) context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if !c.Deadline.IsZero() {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, c.Deadline)
		parent := cancel
		cancel = func() {
			cancelDeadline()
			parent()
		}
	}
	if c.Done != nil {
		select {
		case <-c.Done:
			cancel()
			return ctx, cancel
		default:
		}
		go func() {
			select {
			case <-c.Done:
				cancel()
			case <-ctx.Done():
			}
		}()
	}
	return ctx, cancel
}

// Message types for profile operations
type (
	CreateProfileMsg struct {
		Call
		UserID string
		Input  profiles.CreateProfileInput
	}

	GetProfileMsg struct {
		Call
		UserID string
	}

	GetUserByUsernameMsg struct {
		Call
		Username string
	}

	UpdateProfileMsg struct {
		Call
		UserID string
		Update models.ProfileUpdate
	}
)

// Message types for the social graph
type (
	FollowMsg struct {
		Call
		FollowerID string
		TargetID   string
	}

	FollowingMsg struct {
		Call
		UserID string
	}
)

// Message types for engagement, feed and reputation
type (
	CreatePostMsg struct {
		Call
		UserID string
		Input  engagement.CreatePostInput
	}

	ToggleLikeMsg struct {
		Call
		UserID string
		PostID string
	}

	AddCommentMsg struct {
		Call
		UserID  string
		PostID  string
		Content string
	}

	ListCommentsMsg struct {
		Call
		PostID string
		Limit  int
	}

	GetFeedMsg struct {
		Call
		UserID   string
		Page     int
		PageSize int
	}

	RetierMsg struct {
		Call
		UserID string
	}
)

// WorkerActor executes one request at a time against the shared services.
// Workers hold no state of their own; all state lives in the ledger store.
type WorkerActor struct {
	services *Services
	metrics  *utils.MetricsCollector
}

func NewWorkerActor(services *Services, metrics *utils.MetricsCollector) actor.Actor {
	return &WorkerActor{services: services, metrics: metrics}
}

func (w *WorkerActor) Receive(c actor.Context) {
	msg, ok := c.Message().(Message)
	if !ok {
		return
	}

	ctx, cancel := msg.call().context()
	defer cancel()

	// The caller may have given up while the request sat in the mailbox.
	if err := ctx.Err(); err != nil {
		c.Respond(utils.NewUnavailableError("request", err))
		return
	}

	result, err := w.handle(ctx, msg)
	if err != nil {
		appErr := utils.AsAppError(err)
		if appErr.Code == utils.ErrInternal {
			log.Error().Err(err).Msgf("%T failed", msg)
		}
		c.Respond(appErr)
		return
	}
	c.Respond(result)
}

func (w *WorkerActor) handle(ctx context.Context, message Message) (interface{}, error) {
	s := w.services
	switch msg := message.(type) {
	case *CreateProfileMsg:
		return s.Profiles.CreateProfile(ctx, msg.UserID, msg.Input)
	case *GetProfileMsg:
		return s.Profiles.GetProfile(ctx, msg.UserID)
	case *GetUserByUsernameMsg:
		return s.Profiles.GetByUsername(ctx, msg.Username)
	case *UpdateProfileMsg:
		return s.Profiles.UpdateProfile(ctx, msg.UserID, msg.Update)

	case *FollowMsg:
		return s.Graph.Follow(ctx, msg.FollowerID, msg.TargetID)
	case *FollowingMsg:
		return s.Graph.Following(ctx, msg.UserID)

	case *CreatePostMsg:
		return s.Ledger.CreatePost(ctx, msg.UserID, msg.Input)
	case *ToggleLikeMsg:
		return s.Ledger.ToggleLike(ctx, msg.UserID, msg.PostID)
	case *AddCommentMsg:
		return s.Ledger.AddComment(ctx, msg.UserID, msg.PostID, msg.Content)
	case *ListCommentsMsg:
		return s.Ledger.ListComments(ctx, msg.PostID, msg.Limit)
	case *GetFeedMsg:
		return s.Feed.GetFeed(ctx, msg.UserID, msg.Page, msg.PageSize)
	case *RetierMsg:
		return s.Reputation.RetierUser(ctx, s.Store, s.MaxAttempts, msg.UserID)
	}
	return nil, utils.NewAppError(utils.ErrInternal, "unsupported message", nil)
}
