package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/shortlinks/internal/clicks"
	"github.com/joshdurbin/shortlinks/internal/domain"
	"github.com/joshdurbin/shortlinks/internal/geo"
	"github.com/joshdurbin/shortlinks/internal/metrics"
	"github.com/joshdurbin/shortlinks/internal/shortener"
	"github.com/joshdurbin/shortlinks/internal/store/memory"
	"github.com/joshdurbin/shortlinks/internal/store/mocks"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceGenerator hands out test0001, test0002, ...
type sequenceGenerator struct {
	mu      sync.Mutex
	counter int
}

func (g *sequenceGenerator) Generate(ctx context.Context, length int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("test%04d", g.counter), nil
}

func (g *sequenceGenerator) Type() string { return "test" }

// recorderFunc adapts a function to ClickRecorder
type recorderFunc func(ctx context.Context, code, clientAddr, referrer string) error

func (f recorderFunc) Record(ctx context.Context, code, clientAddr, referrer string) error {
	return f(ctx, code, clientAddr, referrer)
}

type testEnv struct {
	service *linkService
	store   *memory.Store
	clock   *fakeClock
	metrics *metrics.Metrics
}

func setupService(t *testing.T) *testEnv {
	t.Helper()

	clock := newFakeClock()
	s := memory.New()
	m := metrics.New(prometheus.NewRegistry())

	gen, err := shortener.NewRandomGenerator(shortener.DefaultConfig(), s)
	require.NoError(t, err)

	country := "NL"
	locator := geo.LocatorFunc(func(ctx context.Context, addr string) (domain.Geo, error) {
		return domain.Geo{Country: &country}, nil
	})
	recorder := clicks.NewRecorder(s, locator, time.Second, m, nil).WithClock(clock.Now)

	return &testEnv{
		service: newLinkService(DefaultConfig(), s, gen, recorder, m, nil, clock.Now),
		store:   s,
		clock:   clock,
		metrics: m,
	}
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func TestLinkService_Create(t *testing.T) {
	tests := []struct {
		name         string
		params       domain.CreateLinkParams
		wantErr      error
		wantCode     string
		wantValidity time.Duration
	}{
		{
			name:         "defaults",
			params:       domain.CreateLinkParams{TargetURL: "https://example.com"},
			wantValidity: 30 * time.Minute,
		},
		{
			name:         "explicit validity",
			params:       domain.CreateLinkParams{TargetURL: "https://example.com/a?b=c", ValidityMinutes: intPtr(90)},
			wantValidity: 90 * time.Minute,
		},
		{
			name:         "requested code",
			params:       domain.CreateLinkParams{TargetURL: "https://example.com", RequestedCode: strPtr("my-link")},
			wantCode:     "my-link",
			wantValidity: 30 * time.Minute,
		},
		{
			name:    "not a url",
			params:  domain.CreateLinkParams{TargetURL: "not a url"},
			wantErr: domain.ErrInvalidURL,
		},
		{
			name:    "relative url",
			params:  domain.CreateLinkParams{TargetURL: "/just/a/path"},
			wantErr: domain.ErrInvalidURL,
		},
		{
			name:    "empty url",
			params:  domain.CreateLinkParams{TargetURL: ""},
			wantErr: domain.ErrInvalidURL,
		},
		{
			name:    "zero validity",
			params:  domain.CreateLinkParams{TargetURL: "https://example.com", ValidityMinutes: intPtr(0)},
			wantErr: domain.ErrInvalidValidity,
		},
		{
			name:    "negative validity",
			params:  domain.CreateLinkParams{TargetURL: "https://example.com", ValidityMinutes: intPtr(-5)},
			wantErr: domain.ErrInvalidValidity,
		},
		{
			name:         "largest validity",
			params:       domain.CreateLinkParams{TargetURL: "https://example.com", ValidityMinutes: intPtr(int(maxValidityMinutes))},
			wantValidity: time.Duration(maxValidityMinutes) * time.Minute,
		},
		{
			name:    "validity overflowing a duration",
			params:  domain.CreateLinkParams{TargetURL: "https://example.com", ValidityMinutes: intPtr(200_000_000)},
			wantErr: domain.ErrInvalidValidity,
		},
		{
			name:    "max int validity",
			params:  domain.CreateLinkParams{TargetURL: "https://example.com", ValidityMinutes: intPtr(math.MaxInt)},
			wantErr: domain.ErrInvalidValidity,
		},
		{
			name:    "code too short",
			params:  domain.CreateLinkParams{TargetURL: "https://example.com", RequestedCode: strPtr("ab")},
			wantErr: domain.ErrInvalidCodeFormat,
		},
		{
			name:    "code too long",
			params:  domain.CreateLinkParams{TargetURL: "https://example.com", RequestedCode: strPtr("abcdefghijklmnopqrstu")},
			wantErr: domain.ErrInvalidCodeFormat,
		},
		{
			name:    "code with slash",
			params:  domain.CreateLinkParams{TargetURL: "https://example.com", RequestedCode: strPtr("a/b/c")},
			wantErr: domain.ErrInvalidCodeFormat,
		},
		{
			name: "first failure wins",
			params: domain.CreateLinkParams{
				TargetURL:       "nope",
				ValidityMinutes: intPtr(-1),
				RequestedCode:   strPtr("x"),
			},
			wantErr: domain.ErrInvalidURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t)

			created, err := env.service.Create(context.Background(), tt.params)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, created)
				assert.Equal(t, 0, env.store.Len(), "no record on failure")
				return
			}

			require.NoError(t, err)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, created.Code)
			} else {
				assert.Len(t, created.Code, 5)
			}
			assert.Equal(t, env.clock.Now().Add(tt.wantValidity), created.ExpiresAt)

			record, err := env.store.Get(context.Background(), created.Code)
			require.NoError(t, err)
			assert.Equal(t, tt.params.TargetURL, record.TargetURL)
			assert.Equal(t, env.clock.Now(), record.CreatedAt)
			assert.Empty(t, record.Clicks)
		})
	}
}

func TestLinkService_Create_CodeConflict(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "https://first.example", RequestedCode: strPtr("abc")})
	require.NoError(t, err)

	created, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "https://second.example", RequestedCode: strPtr("abc")})
	assert.ErrorIs(t, err, domain.ErrCodeConflict)
	assert.Nil(t, created)

	target, err := env.service.Resolve(ctx, "abc", "8.8.8.8", "")
	require.NoError(t, err)
	assert.Equal(t, "https://first.example", target, "no overwrite")

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.LinksCreated.WithLabelValues(metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.LinksCreated.WithLabelValues(metrics.OutcomeConflict)))
}

func TestLinkService_Create_ConflictWithExpiredCode(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com", ValidityMinutes: intPtr(1), RequestedCode: strPtr("abc")})
	require.NoError(t, err)

	env.clock.Advance(time.Hour)

	_, err = env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com", RequestedCode: strPtr("abc")})
	assert.ErrorIs(t, err, domain.ErrCodeConflict, "expired codes are never reused")
}

func TestLinkService_Create_ConcurrentSameCode(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	var succeeded, conflicted atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.service.Create(ctx, domain.CreateLinkParams{
				TargetURL:     fmt.Sprintf("https://example.com/%d", i),
				RequestedCode: strPtr("shared"),
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrCodeConflict):
				conflicted.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(goroutines-1), conflicted.Load())
}

func TestLinkService_Create_ConcurrentGenerated(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	const goroutines = 100
	codes := make(chan string, goroutines)
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com"})
			if assert.NoError(t, err) {
				codes <- created.Code
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool)
	for code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, goroutines)
	assert.Equal(t, goroutines, env.store.Len())
}

func TestLinkService_Create_RetriesInsertCollision(t *testing.T) {
	ctx := context.Background()
	s := &mocks.LinkStore{}
	s.On("Insert", ctx, mock.MatchedBy(func(r *domain.LinkRecord) bool { return r.Code == "test0001" })).
		Return(domain.ErrAlreadyExists).Once()
	s.On("Insert", ctx, mock.MatchedBy(func(r *domain.LinkRecord) bool { return r.Code == "test0002" })).
		Return(nil).Once()

	svc := newLinkService(DefaultConfig(), s, &sequenceGenerator{}, nil, nil, nil, time.Now)

	created, err := svc.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "test0002", created.Code)
	s.AssertExpectations(t)
}

func TestLinkService_Create_InsertAlwaysColliding(t *testing.T) {
	ctx := context.Background()
	s := &mocks.LinkStore{}
	s.On("Insert", ctx, mock.AnythingOfType("*domain.LinkRecord")).Return(domain.ErrAlreadyExists)

	cfg := DefaultConfig()
	cfg.Codes.MaxAttempts = 3
	svc := newLinkService(cfg, s, &sequenceGenerator{}, nil, nil, nil, time.Now)

	_, err := svc.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com"})
	assert.ErrorIs(t, err, domain.ErrCodeSpaceExhausted)
	s.AssertNumberOfCalls(t, "Insert", 3)
}

func TestLinkService_Create_GeneratorExhausted(t *testing.T) {
	env := setupService(t)

	cfg := shortener.DefaultConfig()
	cfg.MaxAttempts = 2
	gen, err := shortener.NewRandomGenerator(cfg, alwaysTaken{})
	require.NoError(t, err)
	env.service.generator = gen

	_, err = env.service.Create(context.Background(), domain.CreateLinkParams{TargetURL: "https://example.com"})
	assert.ErrorIs(t, err, domain.ErrCodeSpaceExhausted)
	assert.Equal(t, 0, env.store.Len())
}

type alwaysTaken struct{}

func (alwaysTaken) Has(ctx context.Context, code string) (bool, error) { return true, nil }

func TestLinkService_Create_StoreError(t *testing.T) {
	ctx := context.Background()
	s := &mocks.LinkStore{}
	s.On("Insert", ctx, mock.AnythingOfType("*domain.LinkRecord")).Return(assert.AnError)

	svc := newLinkService(DefaultConfig(), s, &sequenceGenerator{}, nil, nil, nil, time.Now)

	_, err := svc.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com", RequestedCode: strPtr("abc")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create link")
	assert.NotErrorIs(t, err, domain.ErrCodeConflict)
}

func TestLinkService_CreateThenResolve(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	urls := []string{
		"https://example.com",
		"http://example.com:8080/path/to/page?query=value#frag",
		"https://sub.example.co.uk/%C3%BC?x=%20y",
		"ftp://files.example.com/file.txt",
	}

	for _, u := range urls {
		created, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: u})
		require.NoError(t, err)

		target, err := env.service.Resolve(ctx, created.Code, "8.8.8.8", "")
		require.NoError(t, err)
		assert.Equal(t, u, target)
	}
}

func TestLinkService_NotFound(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.service.Resolve(ctx, "missing", "8.8.8.8", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stats, err := env.service.Inspect(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, stats)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Resolves.WithLabelValues(metrics.OutcomeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Inspects.WithLabelValues(metrics.OutcomeNotFound)))
}

func TestLinkService_ExpiryScenario(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	created, err := env.service.Create(ctx, domain.CreateLinkParams{
		TargetURL:       "https://example.com",
		ValidityMinutes: intPtr(1),
		RequestedCode:   strPtr("abc"),
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", created.Code)
	assert.Equal(t, env.clock.Now().Add(time.Minute), created.ExpiresAt)

	target, err := env.service.Resolve(ctx, "abc", "8.8.8.8", "https://ref.example")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)

	stats, err := env.service.Inspect(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalClicks)
	require.Len(t, stats.Clicks, 1)
	assert.Equal(t, "https://ref.example", *stats.Clicks[0].Referrer)
	assert.Equal(t, "NL", *stats.Clicks[0].Geo.Country)

	// Still active at exactly expiresAt
	env.clock.Advance(time.Minute)
	_, err = env.service.Resolve(ctx, "abc", "8.8.8.8", "")
	require.NoError(t, err)

	env.clock.Advance(time.Second)

	_, err = env.service.Resolve(ctx, "abc", "8.8.8.8", "")
	assert.ErrorIs(t, err, domain.ErrExpired)

	_, err = env.service.Inspect(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrExpired)

	// The record stays in the store; expiry is not a deletion
	record, err := env.store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, record.Clicks, 2, "expired resolve records no click")
}

func TestLinkService_ExpiryForAnyValidity(t *testing.T) {
	for _, minutes := range []int{1, 2, 30, 60, 1440} {
		t.Run(fmt.Sprintf("%d minutes", minutes), func(t *testing.T) {
			env := setupService(t)
			ctx := context.Background()

			created, err := env.service.Create(ctx, domain.CreateLinkParams{
				TargetURL:       "https://example.com",
				ValidityMinutes: intPtr(minutes),
			})
			require.NoError(t, err)

			env.clock.Advance(time.Duration(minutes)*time.Minute + time.Nanosecond)

			_, err = env.service.Resolve(ctx, created.Code, "8.8.8.8", "")
			assert.ErrorIs(t, err, domain.ErrExpired)
			_, err = env.service.Inspect(ctx, created.Code)
			assert.ErrorIs(t, err, domain.ErrExpired)
		})
	}
}

func TestLinkService_ConcurrentResolve(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	created, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com"})
	require.NoError(t, err)

	const resolves = 200
	var wg sync.WaitGroup
	for i := 0; i < resolves; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target, err := env.service.Resolve(ctx, created.Code, "8.8.8.8", fmt.Sprintf("https://ref.example/%d", i))
			assert.NoError(t, err)
			assert.Equal(t, "https://example.com", target)
		}(i)
	}
	wg.Wait()

	stats, err := env.service.Inspect(ctx, created.Code)
	require.NoError(t, err)
	assert.Equal(t, resolves, stats.TotalClicks)
	assert.Len(t, stats.Clicks, resolves)
	assert.Equal(t, float64(resolves), testutil.ToFloat64(env.metrics.ClicksRecorded))
}

func TestLinkService_Inspect_Idempotent(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	created, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := env.service.Resolve(ctx, created.Code, "8.8.8.8", "")
		require.NoError(t, err)
	}

	first, err := env.service.Inspect(ctx, created.Code)
	require.NoError(t, err)
	second, err := env.service.Inspect(ctx, created.Code)
	require.NoError(t, err)

	assert.Equal(t, 3, first.TotalClicks)
	assert.Equal(t, first, second)
}

func TestLinkService_Inspect_EmptyHistory(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	created, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com"})
	require.NoError(t, err)

	stats, err := env.service.Inspect(ctx, created.Code)
	require.NoError(t, err)
	assert.Equal(t, created.Code, stats.Code)
	assert.Equal(t, "https://example.com", stats.TargetURL)
	assert.Equal(t, env.clock.Now(), stats.CreatedAt)
	assert.Equal(t, created.ExpiresAt, stats.ExpiresAt)
	assert.Equal(t, 0, stats.TotalClicks)
	assert.NotNil(t, stats.Clicks)
}

func TestLinkService_InvalidCreateLeavesNoRecord(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "not a url"})
	require.ErrorIs(t, err, domain.ErrInvalidURL)

	for _, guess := range []string{"abc", "test0001", "AAAAA"} {
		_, err := env.service.Inspect(ctx, guess)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.LinksCreated.WithLabelValues(metrics.OutcomeInvalid)))
}

func TestLinkService_Resolve_RecorderFailureDoesNotBlockRedirect(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	var calls atomic.Int32
	env.service.recorder = recorderFunc(func(ctx context.Context, code, clientAddr, referrer string) error {
		calls.Add(1)
		return errors.New("append failed")
	})

	created, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com"})
	require.NoError(t, err)

	target, err := env.service.Resolve(ctx, created.Code, "8.8.8.8", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLinkService_Resolve_PassesClickDetails(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.service.recorder = recorderFunc(func(ctx context.Context, code, clientAddr, referrer string) error {
		assert.Equal(t, "abc", code)
		assert.Equal(t, "203.0.113.9", clientAddr)
		assert.Equal(t, "https://ref.example", referrer)
		return nil
	})

	_, err := env.service.Create(ctx, domain.CreateLinkParams{TargetURL: "https://example.com", RequestedCode: strPtr("abc")})
	require.NoError(t, err)

	_, err = env.service.Resolve(ctx, "abc", "203.0.113.9", "https://ref.example")
	require.NoError(t, err)
}

func TestLinkService_Resolve_StoreError(t *testing.T) {
	ctx := context.Background()
	s := &mocks.LinkStore{}
	s.On("Get", ctx, "abc").Return(nil, assert.AnError)

	svc := newLinkService(DefaultConfig(), s, &sequenceGenerator{}, nil, nil, nil, time.Now)

	_, err := svc.Resolve(ctx, "abc", "8.8.8.8", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get link")
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	s.AssertExpectations(t)
}

func TestLinkService_Close(t *testing.T) {
	s := &mocks.LinkStore{}
	s.On("Close").Return(nil).Once()
	svc := NewLinkService(DefaultConfig(), s, &sequenceGenerator{}, nil, nil, nil)
	assert.NoError(t, svc.Close())

	s = &mocks.LinkStore{}
	s.On("Close").Return(assert.AnError).Once()
	svc = NewLinkService(DefaultConfig(), s, &sequenceGenerator{}, nil, nil, nil)
	err := svc.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close store")
}
