package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JuhanV/Sleep-Game/internal/domain"
)

type memoryProfileRepo struct {
	mu   sync.Mutex
	byID map[int64]domain.Profile
}

func newMemoryProfileRepo(profiles ...domain.Profile) *memoryProfileRepo {
	m := &memoryProfileRepo{byID: map[int64]domain.Profile{}}
	for i, p := range profiles {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC)
		}
		m.byID[p.ID] = p
	}
	return m
}

func (m *memoryProfileRepo) get(id int64) domain.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memoryProfileRepo) GetByID(_ context.Context, id int64) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		return p, nil
	}
	return domain.Profile{}, fmt.Errorf("get profile: %w", domain.ErrProfileNotFound)
}

func (m *memoryProfileRepo) GetByOuraUserID(_ context.Context, ouraUserID string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.OuraUserID == ouraUserID {
			return p, nil
		}
	}
	return domain.Profile{}, fmt.Errorf("get profile: %w", domain.ErrProfileNotFound)
}

func (m *memoryProfileRepo) GetByEmail(_ context.Context, email string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Email != "" && strings.EqualFold(p.Email, email) {
			return p, nil
		}
	}
	return domain.Profile{}, fmt.Errorf("get profile by email: %w", domain.ErrProfileNotFound)
}

func (m *memoryProfileRepo) List(context.Context) ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Profile, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryProfileRepo) Leaderboard(ctx context.Context) ([]domain.PublicProfile, error) {
	profiles, _ := m.List(ctx)
	sort.SliceStable(profiles, func(i, j int) bool {
		a, b := profiles[i].AvgSleepScore, profiles[j].AvgSleepScore
		switch {
		case a == nil && b == nil:
			return profiles[i].DisplayName < profiles[j].DisplayName
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		default:
			return profiles[i].DisplayName < profiles[j].DisplayName
		}
	})
	out := make([]domain.PublicProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.Public())
	}
	return out, nil
}

func (m *memoryProfileRepo) Create(_ context.Context, p domain.Profile) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = p
	return p, nil
}

func (m *memoryProfileRepo) UpdateLogin(_ context.Context, p domain.Profile) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = p
	return p, nil
}

func (m *memoryProfileRepo) UpdateTokens(_ context.Context, id int64, record string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.OuraTokens = record
	m.byID[id] = p
	return nil
}

func (m *memoryProfileRepo) UpdateSleepScores(_ context.Context, id int64, summary domain.SleepSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.AvgSleepScore, p.LastSleepScore = summary.Average, summary.Last
	m.byID[id] = p
	return nil
}

func (m *memoryProfileRepo) SetAdmin(_ context.Context, id int64, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("set admin: %w", domain.ErrProfileNotFound)
	}
	p.IsAdmin = isAdmin
	m.byID[id] = p
	return nil
}

func (m *memoryProfileRepo) PromoteByEmail(_ context.Context, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.byID {
		if strings.EqualFold(p.Email, email) && !p.IsAdmin {
			p.IsAdmin = true
			m.byID[id] = p
			n++
		}
	}
	return n, nil
}

type memoryFriendRepo struct {
	mu       sync.Mutex
	links    []domain.Friendship
	profiles *memoryProfileRepo
}

func (m *memoryFriendRepo) Exists(_ context.Context, userID, friendID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.UserID == userID && l.FriendID == friendID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryFriendRepo) Create(ctx context.Context, f domain.Friendship) error {
	if ok, _ := m.Exists(ctx, f.UserID, f.FriendID); ok {
		return domain.ErrAlreadyFriends
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f.CreatedAt = time.Now()
	m.links = append(m.links, f)
	return nil
}

func (m *memoryFriendRepo) Delete(_ context.Context, userID, friendID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.links[:0]
	for _, l := range m.links {
		if l.UserID == userID && l.FriendID == friendID {
			continue
		}
		kept = append(kept, l)
	}
	m.links = kept
	return nil
}

func (m *memoryFriendRepo) ListFriends(_ context.Context, userID int64) ([]domain.Friend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Friend
	for _, l := range m.links {
		if l.UserID != userID {
			continue
		}
		p := m.profiles.get(l.FriendID)
		out = append(out, domain.Friend{PublicProfile: p.Public(), Since: l.CreatedAt})
	}
	return out, nil
}

type fakeOuraAPI struct {
	mu           sync.Mutex
	sleep        []domain.DailySleep
	readiness    []domain.DailyReadiness
	activity     []domain.DailyActivity
	sleepErr     error
	readinessErr error
	activityErr  error
	sleepCalls   int
	lastStart    time.Time
	lastEnd      time.Time
}

func (f *fakeOuraAPI) DailySleep(_ context.Context, _ *http.Client, start, end time.Time) ([]domain.DailySleep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleepCalls++
	f.lastStart, f.lastEnd = start, end
	return f.sleep, f.sleepErr
}

func (f *fakeOuraAPI) DailyReadiness(context.Context, *http.Client, time.Time, time.Time) ([]domain.DailyReadiness, error) {
	return f.readiness, f.readinessErr
}

func (f *fakeOuraAPI) DailyActivity(context.Context, *http.Client, time.Time, time.Time) ([]domain.DailyActivity, error) {
	return f.activity, f.activityErr
}

type staticClients struct {
	err error
}

func (s staticClients) Client(context.Context, domain.Profile) (*http.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	return http.DefaultClient, nil
}

var errBoom = errors.New("boom")

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
