package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// captureOutput captures stdout for testing print statements
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	origStdout := os.Stdout
	os.Stdout = w

	outputChan := make(chan string)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r)
		outputChan <- buf.String()
	}()

	fn()

	w.Close()
	os.Stdout = origStdout

	output := <-outputChan
	r.Close()

	return output
}

func TestNewCommands(t *testing.T) {
	client := NewClient("http://localhost:8080")
	commands := NewCommands(client)

	assert.NotNil(t, commands)
	assert.Equal(t, client, commands.client)
}

func TestCommands_Create(t *testing.T) {
	t.Run("successful creation with options", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req domain.CreateLinkRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if assert.NotNil(t, req.Validity) && assert.NotNil(t, req.ShortCode) {
				assert.Equal(t, 5, *req.Validity)
				assert.Equal(t, "docs", *req.ShortCode)
			}

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(domain.CreateLinkResponse{
				Code:      "docs",
				ShortLink: "http://sho.rt/docs",
				Expiry:    time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC),
			})
		}))
		defer server.Close()

		commands := NewCommands(NewClient(server.URL))

		var err error
		output := captureOutput(t, func() {
			err = commands.Create(context.Background(), "https://example.com", 5, "docs")
		})

		require.NoError(t, err)
		assert.Contains(t, output, "Short link created:")
		assert.Contains(t, output, "Code: docs")
		assert.Contains(t, output, "Short Link: http://sho.rt/docs")
		assert.Contains(t, output, "Expires At: 2024-01-01T12:05:00Z")
	})

	t.Run("defaults omit optional fields", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var raw map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			assert.NotContains(t, raw, "validity")
			assert.NotContains(t, raw, "shortcode")

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(domain.CreateLinkResponse{Code: "abc12"})
		}))
		defer server.Close()

		commands := NewCommands(NewClient(server.URL))
		captureOutput(t, func() {
			assert.NoError(t, commands.Create(context.Background(), "https://example.com", 0, ""))
		})
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(domain.ErrorResponse{Error: "invalid url"})
		}))
		defer server.Close()

		commands := NewCommands(NewClient(server.URL))

		err := commands.Create(context.Background(), "nope", 0, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid url")
	})
}

func TestCommands_Stats(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	referrer := "https://news.example/item"
	city, country := "Amsterdam", "Netherlands"

	t.Run("with clicks", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(domain.LinkStats{
				Code:        "docs",
				TargetURL:   "https://example.com/docs",
				CreatedAt:   created,
				ExpiresAt:   created.Add(30 * time.Minute),
				TotalClicks: 2,
				Clicks: []domain.ClickEvent{
					{Timestamp: created.Add(time.Minute), Referrer: &referrer, Geo: domain.Geo{City: &city, Country: &country}},
					{Timestamp: created.Add(2 * time.Minute)},
				},
			})
		}))
		defer server.Close()

		commands := NewCommands(NewClient(server.URL))

		var err error
		output := captureOutput(t, func() {
			err = commands.Stats(context.Background(), "docs")
		})

		require.NoError(t, err)
		assert.Contains(t, output, "Code: docs")
		assert.Contains(t, output, "Target URL: https://example.com/docs")
		assert.Contains(t, output, "Expires At: 2024-01-01T12:30:00Z")
		assert.Contains(t, output, "Total Clicks: 2")
		assert.Contains(t, output, referrer)
		assert.Contains(t, output, "Amsterdam, Netherlands")
		assert.Contains(t, output, "unknown")
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		commands := NewCommands(NewClient(server.URL))

		var err error
		output := captureOutput(t, func() {
			err = commands.Stats(context.Background(), "nope")
		})
		require.NoError(t, err)
		assert.Contains(t, output, "Short code 'nope' not found")
	})

	t.Run("expired", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGone)
		}))
		defer server.Close()

		commands := NewCommands(NewClient(server.URL))

		var err error
		output := captureOutput(t, func() {
			err = commands.Stats(context.Background(), "old")
		})
		require.NoError(t, err)
		assert.Contains(t, output, "Short code 'old' has expired")
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		err := NewCommands(NewClient(server.URL)).Stats(context.Background(), "boom")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	})
}

func TestFormatGeo(t *testing.T) {
	region := "North Holland"
	empty := ""
	assert.Equal(t, "unknown", formatGeo(domain.Geo{}))
	assert.Equal(t, "unknown", formatGeo(domain.Geo{City: &empty}))
	assert.Equal(t, "North Holland", formatGeo(domain.Geo{Region: &region}))
}
