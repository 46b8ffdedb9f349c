package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"devfeed/internal/middleware"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type SimConfig struct {
	NumUsers       int
	SimulationTime time.Duration
	RoundInterval  time.Duration
	Workers        int

	// Per user, per round probabilities.
	FollowProbability  float64
	PostProbability    float64
	AIPostShare        float64
	LikeProbability    float64
	CommentProbability float64
	FeedProbability    float64

	DisconnectRate float64
	ReconnectRate  float64
	ZipfS          float64

	EngineURL string
	JWTSecret string
	JWTIssuer string
}

func DefaultSimConfig() SimConfig {
	return SimConfig{
		NumUsers:           50,
		SimulationTime:     5 * time.Minute,
		RoundInterval:      time.Second,
		Workers:            8,
		FollowProbability:  0.1,
		PostProbability:    0.05,
		AIPostShare:        0.2,
		LikeProbability:    0.3,
		CommentProbability: 0.1,
		FeedProbability:    0.3,
		DisconnectRate:     0.01,
		ReconnectRate:      0.05,
		ZipfS:              1.07,
		EngineURL:          "http://localhost:8080",
	}
}

type SimulationStats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	totalLatency    time.Duration
	ErrorsByCode    map[string]int64
	TotalFollows    int
	TotalUnfollows  int
	TotalPosts      int
	AIPosts         int
	TotalLikes      int
	TotalUnlikes    int
	TotalComments   int
	FeedFetches     int
}

// SimulatedUser tracks what the simulator knows about one synthetic account.
type SimulatedUser struct {
	ID          string
	Username    string
	Token       string
	IsConnected bool
	Posts       []string
	Following   map[string]bool
}

// APIError is a non-2xx reply from the engine.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

type EnhancedSimulator struct {
	config SimConfig
	stats  *SimulationStats
	auth   *middleware.Authenticator
	users  []*SimulatedUser
	client *http.Client
	runTag string
	mu     sync.RWMutex
}

func NewEnhancedSimulator(config SimConfig) *EnhancedSimulator {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.RoundInterval <= 0 {
		config.RoundInterval = time.Second
	}
	return &EnhancedSimulator{
		config: config,
		stats: &SimulationStats{
			StartTime:    time.Now(),
			ErrorsByCode: make(map[string]int64),
		},
		auth:   middleware.NewAuthenticator(config.JWTSecret, config.JWTIssuer),
		client: &http.Client{Timeout: 10 * time.Second},
		runTag: uuid.NewString()[:6],
	}
}

func (s *EnhancedSimulator) Run(ctx context.Context) error {
	log.Info().Int("users", s.config.NumUsers).Str("engine", s.config.EngineURL).Msg("starting simulation")

	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.SimulateActivities(ctx)
	}()
	go func() {
		defer wg.Done()
		s.simulateConnectivity(ctx)
	}()
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()
	wg.Wait()
	return nil
}

// initialize creates a profile for every synthetic user.
func (s *EnhancedSimulator) initialize(ctx context.Context) error {
	users := make([]*SimulatedUser, s.config.NumUsers)
	jobs := make(chan int)
	errs := make(chan error, s.config.NumUsers)

	var wg sync.WaitGroup
	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				user, err := s.createUser(ctx, i)
				if err != nil {
					errs <- err
					continue
				}
				users[i] = user
			}
		}()
	}
	for i := 0; i < s.config.NumUsers; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(errs)

	created := users[:0]
	for _, u := range users {
		if u != nil {
			created = append(created, u)
		}
	}
	if len(created) == 0 {
		if err := <-errs; err != nil {
			return err
		}
		return fmt.Errorf("no users created")
	}

	s.mu.Lock()
	s.users = created
	s.mu.Unlock()
	log.Info().Int("created", len(created)).Int("requested", s.config.NumUsers).Msg("profiles created")
	return nil
}

func (s *EnhancedSimulator) createUser(ctx context.Context, n int) (*SimulatedUser, error) {
	id := uuid.NewString()
	token, err := s.auth.GenerateToken(id, s.config.SimulationTime+time.Hour)
	if err != nil {
		return nil, err
	}
	user := &SimulatedUser{
		ID:          id,
		Username:    fmt.Sprintf("sim_%s_%d", s.runTag, n),
		Token:       token,
		IsConnected: true,
		Following:   make(map[string]bool),
	}

	body := map[string]string{
		"username":    user.Username,
		"displayName": fmt.Sprintf("Sim User %d", n),
		"bio":         "synthetic load",
	}
	if err := s.makeRequest(ctx, user, http.MethodPost, "/api/auth/create-profile", body, nil); err != nil {
		return nil, fmt.Errorf("create profile %s: %w", user.Username, err)
	}
	return user, nil
}

// makeRequest sends a JSON request as user and decodes a 2xx reply into out.
func (s *EnhancedSimulator) makeRequest(ctx context.Context, user *SimulatedUser, method, path string, data, out interface{}) error {
	var body io.Reader
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.EngineURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+user.Token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.recordRequestMetrics(start, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		json.NewDecoder(resp.Body).Decode(apiErr)
		s.recordRequestMetrics(start, apiErr)
		return apiErr
	}
	s.recordRequestMetrics(start, nil)
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (s *EnhancedSimulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	s.stats.TotalRequests++
	s.stats.totalLatency += time.Since(start)
	if err == nil {
		s.stats.SuccessRequests++
		return
	}
	s.stats.FailedRequests++
	code := "TRANSPORT"
	if apiErr, ok := err.(*APIError); ok && apiErr.Code != "" {
		code = apiErr.Code
	}
	s.stats.ErrorsByCode[code]++
}

func (s *EnhancedSimulator) simulateConnectivity(ctx context.Context) {
	ticker := time.NewTicker(s.config.RoundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			for _, user := range s.users {
				if user.IsConnected && rand.Float64() < s.config.DisconnectRate {
					user.IsConnected = false
				} else if !user.IsConnected && rand.Float64() < s.config.ReconnectRate {
					user.IsConnected = true
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *EnhancedSimulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			log.Info().
				Int64("requests", m.TotalRequests).
				Int64("failed", m.FailedRequests).
				Dur("avgLatency", m.AverageLatency).
				Int("posts", m.TotalPosts).
				Int("likes", m.TotalLikes).
				Int("comments", m.TotalComments).
				Int("follows", m.TotalFollows).
				Int("feeds", m.FeedFetches).
				Msg("simulation progress")
		}
	}
}

// SimulationMetrics is a point-in-time copy of the stats.
type SimulationMetrics struct {
	Elapsed         time.Duration
	TotalUsers      int
	ActiveUsers     int
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	AverageLatency  time.Duration
	ErrorsByCode    map[string]int64
	TotalFollows    int
	TotalUnfollows  int
	TotalPosts      int
	AIPosts         int
	TotalLikes      int
	TotalUnlikes    int
	TotalComments   int
	FeedFetches     int
}

func (s *EnhancedSimulator) GetMetrics() SimulationMetrics {
	s.mu.RLock()
	total, active := len(s.users), 0
	for _, u := range s.users {
		if u.IsConnected {
			active++
		}
	}
	s.mu.RUnlock()

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	m := SimulationMetrics{
		Elapsed:         time.Since(s.stats.StartTime),
		TotalUsers:      total,
		ActiveUsers:     active,
		TotalRequests:   s.stats.TotalRequests,
		SuccessRequests: s.stats.SuccessRequests,
		FailedRequests:  s.stats.FailedRequests,
		ErrorsByCode:    make(map[string]int64, len(s.stats.ErrorsByCode)),
		TotalFollows:    s.stats.TotalFollows,
		TotalUnfollows:  s.stats.TotalUnfollows,
		TotalPosts:      s.stats.TotalPosts,
		AIPosts:         s.stats.AIPosts,
		TotalLikes:      s.stats.TotalLikes,
		TotalUnlikes:    s.stats.TotalUnlikes,
		TotalComments:   s.stats.TotalComments,
		FeedFetches:     s.stats.FeedFetches,
	}
	if s.stats.TotalRequests > 0 {
		m.AverageLatency = s.stats.totalLatency / time.Duration(s.stats.TotalRequests)
	}
	for code, n := range s.stats.ErrorsByCode {
		m.ErrorsByCode[code] = n
	}
	return m
}
