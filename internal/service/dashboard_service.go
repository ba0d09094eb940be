package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JuhanV/Sleep-Game/internal/adapter/oura"
	"github.com/JuhanV/Sleep-Game/internal/domain"
	"github.com/JuhanV/Sleep-Game/internal/repository"
)

// ErrUpstreamUnauthorized means Oura no longer accepts the stored grant and
// the user has to connect again.
var ErrUpstreamUnauthorized = errors.New("oura authorization rejected")

const (
	dayLayout     = "2006-01-02"
	windowDays    = 7
	metricsPrefix = "metrics:"
)

// OuraAPI reads the daily collections. *oura.Client implements it.
type OuraAPI interface {
	DailySleep(ctx context.Context, hc *http.Client, start, end time.Time) ([]domain.DailySleep, error)
	DailyReadiness(ctx context.Context, hc *http.Client, start, end time.Time) ([]domain.DailyReadiness, error)
	DailyActivity(ctx context.Context, hc *http.Client, start, end time.Time) ([]domain.DailyActivity, error)
}

// ClientProvider yields an authorized HTTP client for a profile. *TokenProvider implements it.
type ClientProvider interface {
	Client(ctx context.Context, profile domain.Profile) (*http.Client, error)
}

// ProfileView is the owner's view of their profile.
type ProfileView struct {
	ID             int64      `json:"id,string"`
	DisplayName    string     `json:"display_name"`
	Email          string     `json:"email,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
	AvgSleepScore  *float64   `json:"avg_sleep_score"`
	LastSleepScore *int       `json:"last_sleep_score"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

// NewProfileView maps a profile to its owner view.
func NewProfileView(p domain.Profile) ProfileView {
	return ProfileView{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		Email:          p.Email,
		IsAdmin:        p.IsAdmin,
		AvgSleepScore:  p.AvgSleepScore,
		LastSleepScore: p.LastSleepScore,
		LastLogin:      p.LastLogin,
	}
}

// Window is the inclusive date range of a metrics view.
type Window struct {
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

// MetricsView is one profile's recent Oura data.
type MetricsView struct {
	Window    Window                  `json:"window"`
	Sleep     []domain.DailySleep     `json:"sleep"`
	Readiness []domain.DailyReadiness `json:"readiness"`
	Activity  []domain.DailyActivity  `json:"activity"`
	Summary   domain.SleepSummary     `json:"summary"`
	Warnings  []string                `json:"warnings,omitempty"`
}

// Dashboard is the signed-in landing view.
type Dashboard struct {
	Profile     ProfileView               `json:"profile"`
	Metrics     *MetricsView              `json:"metrics"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	Friends     []domain.Friend           `json:"friends"`
}

// DashboardService assembles metric views and keeps stored sleep scores current.
type DashboardService struct {
	profiles repository.ProfileRepository
	friends  repository.FriendshipRepository
	clients  ClientProvider
	api      OuraAPI
	cache    repository.MetricsCache
	cacheTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewDashboardService wires dependencies. cache may be nil.
func NewDashboardService(
	profiles repository.ProfileRepository,
	friends repository.FriendshipRepository,
	clients ClientProvider,
	api OuraAPI,
	cache repository.MetricsCache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *DashboardService {
	return &DashboardService{
		profiles: profiles,
		friends:  friends,
		clients:  clients,
		api:      api,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
		logger:   logger,
		tracer:   otel.Tracer("github.com/JuhanV/Sleep-Game/internal/service"),
	}
}

// Me loads the caller's profile.
func (s *DashboardService) Me(ctx context.Context, profileID int64) (ProfileView, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return ProfileView{}, err
	}
	return NewProfileView(profile), nil
}

// Dashboard loads the caller's metrics, the leaderboard and the friends list.
func (s *DashboardService) Dashboard(ctx context.Context, profileID int64) (*Dashboard, error) {
	ctx, span := s.startSpan(ctx, "DashboardService.Dashboard")
	defer span.End()

	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}

	view, err := s.Metrics(ctx, profile)
	if err != nil {
		return nil, err
	}
	profile.AvgSleepScore, profile.LastSleepScore = view.Summary.Average, view.Summary.Last

	board, err := s.profiles.Leaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	friends, err := s.friends.ListFriends(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("load friends: %w", err)
	}

	return &Dashboard{
		Profile:     NewProfileView(profile),
		Metrics:     view,
		Leaderboard: domain.RankProfiles(board, profileID),
		Friends:     nonNil(friends),
	}, nil
}

// Metrics fetches the last seven days for the profile and stores the derived
// sleep scores. Readiness and activity failures only add a warning.
func (s *DashboardService) Metrics(ctx context.Context, profile domain.Profile) (*MetricsView, error) {
	ctx, span := s.startSpan(ctx, "DashboardService.Metrics")
	defer span.End()
	span.SetAttributes(attribute.Int64("profile.id", profile.ID))

	hc, err := s.clients.Client(ctx, profile)
	if err != nil {
		return nil, err
	}
	start, end := s.window()
	view := &MetricsView{
		Window:    Window{Start: start.Format(dayLayout), End: end.Format(dayLayout)},
		Sleep:     []domain.DailySleep{},
		Readiness: []domain.DailyReadiness{},
		Activity:  []domain.DailyActivity{},
	}

	var (
		g            errgroup.Group
		readinessErr error
		activityErr  error
		sleepDays    []domain.DailySleep
		readiness    []domain.DailyReadiness
		activity     []domain.DailyActivity
	)
	g.Go(func() error {
		var err error
		sleepDays, err = cachedFetch(ctx, s, s.cacheKey(profile.ID, oura.EndpointDailySleep, start), func() ([]domain.DailySleep, error) {
			return s.api.DailySleep(ctx, hc, start, end)
		})
		return err
	})
	g.Go(func() error {
		readiness, readinessErr = cachedFetch(ctx, s, s.cacheKey(profile.ID, oura.EndpointDailyReadiness, start), func() ([]domain.DailyReadiness, error) {
			return s.api.DailyReadiness(ctx, hc, start, end)
		})
		return nil
	})
	g.Go(func() error {
		activity, activityErr = cachedFetch(ctx, s, s.cacheKey(profile.ID, oura.EndpointDailyActivity, start), func() ([]domain.DailyActivity, error) {
			return s.api.DailyActivity(ctx, hc, start, end)
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		if oura.IsUnauthorized(err) {
			return nil, ErrUpstreamUnauthorized
		}
		return nil, fmt.Errorf("fetch sleep: %w", err)
	}

	if readinessErr != nil {
		s.log().Warn("readiness fetch failed", zap.Int64("profile_id", profile.ID), zap.Error(readinessErr))
		view.Warnings = append(view.Warnings, "readiness data unavailable")
	} else {
		view.Readiness = nonNil(readiness)
	}
	if activityErr != nil {
		s.log().Warn("activity fetch failed", zap.Int64("profile_id", profile.ID), zap.Error(activityErr))
		view.Warnings = append(view.Warnings, "activity data unavailable")
	} else {
		view.Activity = nonNil(activity)
	}

	view.Sleep = nonNil(sleepDays)
	view.Summary = domain.SummarizeSleep(view.Sleep)
	if err := s.profiles.UpdateSleepScores(ctx, profile.ID, view.Summary); err != nil {
		return nil, fmt.Errorf("store sleep scores: %w", err)
	}
	return view, nil
}

// SyncSleep refreshes only the stored sleep scores, bypassing the cache.
func (s *DashboardService) SyncSleep(ctx context.Context, profile domain.Profile) (domain.SleepSummary, error) {
	ctx, span := s.startSpan(ctx, "DashboardService.SyncSleep")
	defer span.End()

	hc, err := s.clients.Client(ctx, profile)
	if err != nil {
		return domain.SleepSummary{}, err
	}
	start, end := s.window()
	days, err := s.api.DailySleep(ctx, hc, start, end)
	if err != nil {
		if oura.IsUnauthorized(err) {
			return domain.SleepSummary{}, ErrUpstreamUnauthorized
		}
		return domain.SleepSummary{}, fmt.Errorf("fetch sleep: %w", err)
	}
	summary := domain.SummarizeSleep(days)
	if err := s.profiles.UpdateSleepScores(ctx, profile.ID, summary); err != nil {
		return domain.SleepSummary{}, fmt.Errorf("store sleep scores: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.DeletePrefix(ctx, fmt.Sprintf("%s%d:", metricsPrefix, profile.ID)); err != nil {
			s.log().Warn("failed to drop cached metrics", zap.Int64("profile_id", profile.ID), zap.Error(err))
		}
	}
	return summary, nil
}

func (s *DashboardService) window() (time.Time, time.Time) {
	end := s.now().UTC()
	return end.AddDate(0, 0, -windowDays), end
}

func (s *DashboardService) cacheKey(profileID int64, endpoint string, start time.Time) string {
	return fmt.Sprintf("%s%d:%s:%s", metricsPrefix, profileID, endpoint, start.Format(dayLayout))
}

// cachedFetch consults the metrics cache before calling fetch. Cache errors
// are logged and never fail the request.
func cachedFetch[T any](ctx context.Context, s *DashboardService, key string, fetch func() ([]T, error)) ([]T, error) {
	if s.cache != nil && s.cacheTTL > 0 {
		var hit []T
		ok, err := s.cache.Get(ctx, key, &hit)
		if err != nil {
			s.log().Warn("metrics cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return hit, nil
		}
	}
	out, err := fetch()
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, key, out, s.cacheTTL); err != nil {
			s.log().Warn("metrics cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

func (s *DashboardService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *DashboardService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
