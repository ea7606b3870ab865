package shortener

import (
	"context"
)

// Generator defines the interface for generating short codes
type Generator interface {
	// Generate returns a code of the given length that is not yet taken.
	// A length of zero selects the configured default.
	Generate(ctx context.Context, length int) (string, error)

	// Type returns the type identifier of the generator
	Type() string
}

// Checker reports whether a code is already taken
type Checker interface {
	Has(ctx context.Context, code string) (bool, error)
}

// Config holds configuration for shortener generators
type Config struct {
	DefaultLength int `json:"default_length"`
	MinLength     int `json:"min_length"`
	MaxLength     int `json:"max_length"`
	MaxAttempts   int `json:"max_attempts"` // Collision retries before giving up
}

// GeneratorType constants
const (
	TypeRandom = "random"
)

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		DefaultLength: 5,
		MinLength:     3,
		MaxLength:     20,
		MaxAttempts:   10,
	}
}

// Validate checks the configuration for consistency
func (c Config) Validate() error {
	if c.MinLength < 1 {
		return errorf("min length must be positive, got: %d", c.MinLength)
	}
	if c.MaxLength < c.MinLength {
		return errorf("max length %d is below min length %d", c.MaxLength, c.MinLength)
	}
	if c.DefaultLength < c.MinLength || c.DefaultLength > c.MaxLength {
		return errorf("default length %d outside [%d, %d]", c.DefaultLength, c.MinLength, c.MaxLength)
	}
	if c.MaxAttempts < 1 {
		return errorf("max attempts must be positive, got: %d", c.MaxAttempts)
	}
	return nil
}

// ValidCode reports whether code has an allowed length and only URL-safe characters
func (c Config) ValidCode(code string) bool {
	if len(code) < c.MinLength || len(code) > c.MaxLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
		default:
			return false
		}
	}
	return true
}
