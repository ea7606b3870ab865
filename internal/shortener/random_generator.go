package shortener

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

func errorf(format string, args ...any) error {
	return fmt.Errorf("shortener: "+format, args...)
}

// RandomGenerator produces codes from a cryptographically strong random
// source, encoded with the URL-safe base64 alphabet without padding
type RandomGenerator struct {
	config  Config
	checker Checker
	random  io.Reader
}

// NewRandomGenerator creates a generator that checks candidates against checker
func NewRandomGenerator(config Config, checker Checker) (*RandomGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if checker == nil {
		return nil, errorf("checker required for random generator")
	}
	return &RandomGenerator{
		config:  config,
		checker: checker,
		random:  rand.Reader,
	}, nil
}

// WithRandom replaces the entropy source (for testing)
func (g *RandomGenerator) WithRandom(r io.Reader) *RandomGenerator {
	g.random = r
	return g
}

// Generate returns an unused code, retrying on collision up to MaxAttempts times
func (g *RandomGenerator) Generate(ctx context.Context, length int) (string, error) {
	if length == 0 {
		length = g.config.DefaultLength
	}
	if length < g.config.MinLength || length > g.config.MaxLength {
		return "", fmt.Errorf("%w: length %d outside [%d, %d]",
			domain.ErrInvalidCodeFormat, length, g.config.MinLength, g.config.MaxLength)
	}

	for attempt := 0; attempt < g.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code, err := g.randomCode(length)
		if err != nil {
			return "", err
		}

		taken, err := g.checker.Has(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}

	return "", fmt.Errorf("%w: no free code of length %d after %d attempts",
		domain.ErrCodeSpaceExhausted, length, g.config.MaxAttempts)
}

// randomCode encodes enough random bytes to cover length base64 symbols
func (g *RandomGenerator) randomCode(length int) (string, error) {
	buf := make([]byte, (length*6+7)/8)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
}

// Type returns the generator type
func (g *RandomGenerator) Type() string {
	return TypeRandom
}

// Ensure RandomGenerator implements Generator interface
var _ Generator = (*RandomGenerator)(nil)
