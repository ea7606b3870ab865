package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// Commands provides command-line operations for the client
type Commands struct {
	client *Client
}

// NewCommands creates a new Commands instance
func NewCommands(client *Client) *Commands {
	return &Commands{
		client: client,
	}
}

// Create creates a short link and displays the result. Zero validity and an
// empty code leave the choice to the server.
func (c *Commands) Create(ctx context.Context, targetURL string, validity int, code string) error {
	req := domain.CreateLinkRequest{URL: targetURL}
	if validity != 0 {
		req.Validity = &validity
	}
	if code != "" {
		req.ShortCode = &code
	}

	result, err := c.client.CreateLink(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Short link created:\n")
	fmt.Printf("Code: %s\n", result.Code)
	fmt.Printf("Short Link: %s\n", result.ShortLink)
	fmt.Printf("Expires At: %s\n", result.Expiry.Format(time.RFC3339))

	return nil
}

// Stats retrieves and displays the details and clicks of a short code
func (c *Commands) Stats(ctx context.Context, code string) error {
	stats, err := c.client.GetStats(ctx, code)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusNotFound:
				fmt.Printf("Short code '%s' not found\n", code)
				return nil
			case http.StatusGone:
				fmt.Printf("Short code '%s' has expired\n", code)
				return nil
			}
		}
		return err
	}

	fmt.Printf("Link Information:\n")
	fmt.Printf("Code: %s\n", stats.Code)
	fmt.Printf("Target URL: %s\n", stats.TargetURL)
	fmt.Printf("Created At: %s\n", stats.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Expires At: %s\n", stats.ExpiresAt.Format(time.RFC3339))
	fmt.Printf("Total Clicks: %d\n", stats.TotalClicks)

	if len(stats.Clicks) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Printf("%-22s %-40s %s\n", "Timestamp", "Referrer", "Location")
	fmt.Println(strings.Repeat("-", 90))

	for _, click := range stats.Clicks {
		referrer := "-"
		if click.Referrer != nil {
			referrer = *click.Referrer
			if len(referrer) > 40 {
				referrer = referrer[:37] + "..."
			}
		}

		fmt.Printf("%-22s %-40s %s\n",
			click.Timestamp.Format("2006-01-02 15:04:05"),
			referrer,
			formatGeo(click.Geo),
		)
	}

	return nil
}

func formatGeo(g domain.Geo) string {
	if g.IsEmpty() {
		return "unknown"
	}
	var parts []string
	for _, p := range []*string{g.City, g.Region, g.Country} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, ", ")
}
