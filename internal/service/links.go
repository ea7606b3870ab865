package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/joshdurbin/shortlinks/internal/clicks"
	"github.com/joshdurbin/shortlinks/internal/domain"
	"github.com/joshdurbin/shortlinks/internal/metrics"
	"github.com/joshdurbin/shortlinks/internal/shortener"
	"github.com/joshdurbin/shortlinks/internal/store"
)

// DefaultValidityMinutes applies when a create request carries no validity
const DefaultValidityMinutes = 30

// maxValidityMinutes is the longest validity a time.Duration can hold
const maxValidityMinutes = math.MaxInt64 / int64(time.Minute)

// Config holds the link policy
type Config struct {
	DefaultValidity time.Duration
	Codes           shortener.Config
}

// DefaultConfig returns the default link policy
func DefaultConfig() Config {
	return Config{
		DefaultValidity: DefaultValidityMinutes * time.Minute,
		Codes:           shortener.DefaultConfig(),
	}
}

// ClickRecorder records a click for a resolved code
type ClickRecorder interface {
	Record(ctx context.Context, code, clientAddr, referrer string) error
}

// linkService implements LinkService interface
type linkService struct {
	config    Config
	store     store.LinkStore
	generator shortener.Generator
	recorder  ClickRecorder
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewLinkService creates a new link service
func NewLinkService(config Config, store store.LinkStore, generator shortener.Generator, recorder ClickRecorder, m *metrics.Metrics, logger *slog.Logger) LinkService {
	return newLinkService(config, store, generator, recorder, m, logger, time.Now)
}

func newLinkService(config Config, store store.LinkStore, generator shortener.Generator, recorder ClickRecorder, m *metrics.Metrics, logger *slog.Logger, now func() time.Time) *linkService {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DefaultValidity <= 0 {
		config.DefaultValidity = DefaultValidityMinutes * time.Minute
	}
	return &linkService{
		config:    config,
		store:     store,
		generator: generator,
		recorder:  recorder,
		now:       now,
		metrics:   m,
		logger:    logger.With("component", "link_service"),
	}
}

// Create validates the parameters and stores a new link. The first failed
// check is returned.
func (s *linkService) Create(ctx context.Context, params domain.CreateLinkParams) (*domain.CreatedLink, error) {
	created, err := s.create(ctx, params)
	s.metrics.ObserveCreate(createOutcome(err))
	return created, err
}

func (s *linkService) create(ctx context.Context, params domain.CreateLinkParams) (*domain.CreatedLink, error) {
	if err := validateTargetURL(params.TargetURL); err != nil {
		return nil, err
	}

	validity := s.config.DefaultValidity
	if params.ValidityMinutes != nil {
		if *params.ValidityMinutes <= 0 {
			return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidValidity, *params.ValidityMinutes)
		}
		if int64(*params.ValidityMinutes) > maxValidityMinutes {
			return nil, fmt.Errorf("%w: %d exceeds the maximum of %d",
				domain.ErrInvalidValidity, *params.ValidityMinutes, maxValidityMinutes)
		}
		validity = time.Duration(*params.ValidityMinutes) * time.Minute
	}

	if params.RequestedCode != nil {
		code := *params.RequestedCode
		if !s.config.Codes.ValidCode(code) {
			return nil, fmt.Errorf("%w: %q must be %d-%d characters of [A-Za-z0-9_-]",
				domain.ErrInvalidCodeFormat, code, s.config.Codes.MinLength, s.config.Codes.MaxLength)
		}

		record, err := s.insert(ctx, code, params.TargetURL, validity)
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCodeConflict, code)
		}
		if err != nil {
			return nil, err
		}
		return &domain.CreatedLink{Code: record.Code, ExpiresAt: record.ExpiresAt}, nil
	}

	// A generated code can still lose a race with a concurrent insert between
	// the generator's check and ours; draw a new one when that happens.
	for attempt := 0; attempt < s.config.Codes.MaxAttempts; attempt++ {
		code, err := s.generator.Generate(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to generate short code: %w", err)
		}

		record, err := s.insert(ctx, code, params.TargetURL, validity)
		if errors.Is(err, domain.ErrAlreadyExists) {
			s.logger.Debug("generated code collided on insert", "code", code)
			continue
		}
		if err != nil {
			return nil, err
		}
		return &domain.CreatedLink{Code: record.Code, ExpiresAt: record.ExpiresAt}, nil
	}

	return nil, fmt.Errorf("%w: insert kept colliding", domain.ErrCodeSpaceExhausted)
}

func (s *linkService) insert(ctx context.Context, code, targetURL string, validity time.Duration) (*domain.LinkRecord, error) {
	now := s.now()
	record := &domain.LinkRecord{
		Code:      code,
		TargetURL: targetURL,
		CreatedAt: now,
		ExpiresAt: now.Add(validity),
		Clicks:    []domain.ClickEvent{},
	}
	if !record.ExpiresAt.After(record.CreatedAt) {
		return nil, fmt.Errorf("%w: expiry %s is not after creation", domain.ErrInvalidValidity, record.ExpiresAt)
	}

	if err := s.store.Insert(ctx, record); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	s.logger.Info("link created", "code", code, "expires_at", record.ExpiresAt)
	return record, nil
}

// Resolve returns the target of an active code. The click is recorded
// before returning; a recording failure is logged and does not fail the call.
func (s *linkService) Resolve(ctx context.Context, code, clientAddr, referrer string) (string, error) {
	record, err := s.activeRecord(ctx, code)
	s.metrics.ObserveResolve(lookupOutcome(err))
	if err != nil {
		return "", err
	}

	if err := s.recorder.Record(ctx, code, clientAddr, referrer); err != nil {
		s.logger.Warn("failed to record click", "code", code, "error", err)
	}

	return record.TargetURL, nil
}

// Inspect returns the details and click history of an active code
func (s *linkService) Inspect(ctx context.Context, code string) (*domain.LinkStats, error) {
	record, err := s.activeRecord(ctx, code)
	s.metrics.ObserveInspect(lookupOutcome(err))
	if err != nil {
		return nil, err
	}

	return &domain.LinkStats{
		Code:        record.Code,
		TargetURL:   record.TargetURL,
		CreatedAt:   record.CreatedAt,
		ExpiresAt:   record.ExpiresAt,
		TotalClicks: len(record.Clicks),
		Clicks:      record.Clicks,
	}, nil
}

// activeRecord loads code and rejects it when past expiry. Expired records
// stay in the store.
func (s *linkService) activeRecord(ctx context.Context, code string) (*domain.LinkRecord, error) {
	record, err := s.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	if record.IsExpired(s.now()) {
		return nil, domain.ErrExpired
	}

	if record.Clicks == nil {
		record.Clicks = []domain.ClickEvent{}
	}
	return record, nil
}

// Close closes the store
func (s *linkService) Close() error {
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// validateTargetURL accepts absolute URLs with a scheme and a host
func validateTargetURL(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute URL", domain.ErrInvalidURL, raw)
	}
	return nil
}

func createOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, domain.ErrCodeConflict):
		return metrics.OutcomeConflict
	case domain.IsClientError(err):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

func lookupOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, domain.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, domain.ErrExpired):
		return metrics.OutcomeExpired
	default:
		return metrics.OutcomeError
	}
}

// Ensure linkService implements LinkService interface
var (
	_ LinkService   = (*linkService)(nil)
	_ ClickRecorder = (*clicks.Recorder)(nil)
)
