package domain

import (
	"time"
)

// Geo is the coarse location of a client address. A nil field means the
// lookup failed or had no data for it.
type Geo struct {
	Country *string `json:"country"`
	Region  *string `json:"region"`
	City    *string `json:"city"`
}

// IsEmpty reports whether no field was resolved
func (g Geo) IsEmpty() bool {
	return g.Country == nil && g.Region == nil && g.City == nil
}

// ClickEvent records one successful redirect through a short code
type ClickEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Referrer  *string   `json:"referrer"`
	Geo       Geo       `json:"geo"`
}

// LinkRecord represents a short code with its target and click history
type LinkRecord struct {
	Code      string       `json:"code"`
	TargetURL string       `json:"target_url"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Clicks    []ClickEvent `json:"clicks"`
}

// IsExpired reports whether the record is past its validity window at now.
// A record is still active at exactly ExpiresAt.
func (r *LinkRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Clone returns a deep copy safe to hand out to callers
func (r *LinkRecord) Clone() *LinkRecord {
	clone := *r
	clone.Clicks = make([]ClickEvent, len(r.Clicks))
	copy(clone.Clicks, r.Clicks)
	return &clone
}

// CreateLinkParams carries the inputs of a create operation. Nil pointers
// mean the caller did not supply the value.
type CreateLinkParams struct {
	TargetURL       string
	ValidityMinutes *int
	RequestedCode   *string
}

// CreatedLink is the result of a successful create
type CreatedLink struct {
	Code      string
	ExpiresAt time.Time
}

// LinkStats is the read-only view returned by inspect
type LinkStats struct {
	Code        string       `json:"code"`
	TargetURL   string       `json:"target_url"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expiry"`
	TotalClicks int          `json:"total_clicks"`
	Clicks      []ClickEvent `json:"clicks"`
}

// CreateLinkRequest represents the request to create a short link
type CreateLinkRequest struct {
	URL       string  `json:"url"`
	Validity  *int    `json:"validity,omitempty"`
	ShortCode *string `json:"shortcode,omitempty"`
}

// CreateLinkResponse represents the response when creating a short link
type CreateLinkResponse struct {
	Code      string    `json:"code"`
	ShortLink string    `json:"short_link"`
	Expiry    time.Time `json:"expiry"`
}

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
}
