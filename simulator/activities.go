package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

var topics = []string{"golang", "databases", "kubernetes", "testing", "career", "frontend", "rust", "devops"}

type followReply struct {
	Following bool `json:"following"`
}

type postReply struct {
	Post struct {
		ID string `json:"id"`
	} `json:"post"`
}

type likeReply struct {
	Liked bool `json:"liked"`
}

// SimulateActivities runs one activity round per RoundInterval until ctx ends.
func (s *EnhancedSimulator) SimulateActivities(ctx context.Context) {
	ticker := time.NewTicker(s.config.RoundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunRound(ctx)
		}
	}
}

// RunRound lets every connected user act once, spread over the worker pool.
func (s *EnhancedSimulator) RunRound(ctx context.Context) {
	s.mu.RLock()
	users := make([]*SimulatedUser, 0, len(s.users))
	for _, u := range s.users {
		if u.IsConnected {
			users = append(users, u)
		}
	}
	population := len(s.users)
	s.mu.RUnlock()
	if population == 0 {
		return
	}

	jobs := make(chan *SimulatedUser)
	var wg sync.WaitGroup
	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			// Low ranks are the popular accounts.
			zipf := rand.NewZipf(rng, s.config.ZipfS, 1, uint64(population-1))
			for user := range jobs {
				s.act(ctx, rng, zipf, user)
			}
		}(time.Now().UnixNano() + int64(w))
	}

	for _, u := range users {
		select {
		case jobs <- u:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *EnhancedSimulator) act(ctx context.Context, rng *rand.Rand, zipf *rand.Zipf, user *SimulatedUser) {
	if ctx.Err() != nil {
		return
	}
	if rng.Float64() < s.config.FollowProbability {
		s.follow(ctx, user, s.popularUser(zipf))
	}
	if rng.Float64() < s.config.PostProbability {
		s.post(ctx, rng, user)
	}
	if rng.Float64() < s.config.LikeProbability {
		if postID := s.popularPost(rng, zipf); postID != "" {
			s.like(ctx, user, postID)
		}
	}
	if rng.Float64() < s.config.CommentProbability {
		if postID := s.popularPost(rng, zipf); postID != "" {
			s.comment(ctx, rng, user, postID)
		}
	}
	if rng.Float64() < s.config.FeedProbability {
		s.fetchFeed(ctx, user)
	}
}

func (s *EnhancedSimulator) popularUser(zipf *rand.Zipf) *SimulatedUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[int(zipf.Uint64())%len(s.users)]
}

// popularPost picks a post by a Zipf-chosen author, or "" when they have none.
func (s *EnhancedSimulator) popularPost(rng *rand.Rand, zipf *rand.Zipf) string {
	author := s.popularUser(zipf)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(author.Posts) == 0 {
		return ""
	}
	return author.Posts[rng.Intn(len(author.Posts))]
}

func (s *EnhancedSimulator) follow(ctx context.Context, user, target *SimulatedUser) {
	if user.ID == target.ID {
		return
	}
	var reply followReply
	if err := s.makeRequest(ctx, user, http.MethodPost, "/api/users/"+target.Username+"/follow", nil, &reply); err != nil {
		return
	}

	s.mu.Lock()
	user.Following[target.ID] = reply.Following
	s.mu.Unlock()

	s.stats.mu.Lock()
	if reply.Following {
		s.stats.TotalFollows++
	} else {
		s.stats.TotalUnfollows++
	}
	s.stats.mu.Unlock()
}

func (s *EnhancedSimulator) post(ctx context.Context, rng *rand.Rand, user *SimulatedUser) {
	topic := topics[rng.Intn(len(topics))]
	isAI := rng.Float64() < s.config.AIPostShare
	body := map[string]interface{}{
		"content":       fmt.Sprintf("Thoughts on %s from %s at %s", topic, user.Username, time.Now().Format(time.Kitchen)),
		"tags":          []string{topic},
		"isAIGenerated": isAI,
	}

	var reply postReply
	if err := s.makeRequest(ctx, user, http.MethodPost, "/api/posts", body, &reply); err != nil {
		return
	}

	s.mu.Lock()
	user.Posts = append(user.Posts, reply.Post.ID)
	s.mu.Unlock()

	s.stats.mu.Lock()
	s.stats.TotalPosts++
	if isAI {
		s.stats.AIPosts++
	}
	s.stats.mu.Unlock()
}

func (s *EnhancedSimulator) like(ctx context.Context, user *SimulatedUser, postID string) {
	var reply likeReply
	if err := s.makeRequest(ctx, user, http.MethodPost, "/api/posts/"+postID+"/like", nil, &reply); err != nil {
		return
	}
	s.stats.mu.Lock()
	if reply.Liked {
		s.stats.TotalLikes++
	} else {
		s.stats.TotalUnlikes++
	}
	s.stats.mu.Unlock()
}

func (s *EnhancedSimulator) comment(ctx context.Context, rng *rand.Rand, user *SimulatedUser, postID string) {
	body := map[string]string{"content": fmt.Sprintf("+1 on this (%d)", rng.Intn(1000))}
	if err := s.makeRequest(ctx, user, http.MethodPost, "/api/posts/"+postID+"/comments", body, nil); err != nil {
		return
	}
	s.stats.mu.Lock()
	s.stats.TotalComments++
	s.stats.mu.Unlock()
}

func (s *EnhancedSimulator) fetchFeed(ctx context.Context, user *SimulatedUser) {
	if err := s.makeRequest(ctx, user, http.MethodGet, "/api/posts/feed?page=1&limit=20", nil, nil); err != nil {
		return
	}
	s.stats.mu.Lock()
	s.stats.FeedFetches++
	s.stats.mu.Unlock()
}
