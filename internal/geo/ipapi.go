package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// DefaultIPAPIEndpoint is the public ip-api JSON endpoint
const DefaultIPAPIEndpoint = "http://ip-api.com/json/"

// ipapiResponse is the subset of the ip-api response we use
type ipapiResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
}

// IPAPI looks addresses up against an ip-api compatible HTTP endpoint
type IPAPI struct {
	endpoint   string
	httpClient *http.Client
}

// NewIPAPI creates a locator for endpoint; timeout bounds each request
func NewIPAPI(endpoint string, timeout time.Duration) *IPAPI {
	if endpoint == "" {
		endpoint = DefaultIPAPIEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &IPAPI{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Locate queries the endpoint for addr. Non-public addresses are not sent.
func (l *IPAPI) Locate(ctx context.Context, addr string) (domain.Geo, error) {
	ip := NormalizeAddr(addr)
	if !IsPublic(ip) {
		return domain.Geo{}, ErrNoData
	}

	query := url.Values{"fields": {"status,message,country,regionName,city"}}
	reqURL := l.endpoint + url.PathEscape(ip.String()) + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Geo{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return domain.Geo{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Geo{}, fmt.Errorf("geolocation service returned status %d", resp.StatusCode)
	}

	var result ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.Geo{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Status != "success" {
		return domain.Geo{}, fmt.Errorf("%w: %s", ErrNoData, result.Message)
	}

	geo := domain.Geo{
		Country: stringPtr(result.Country),
		Region:  stringPtr(result.RegionName),
		City:    stringPtr(result.City),
	}
	if geo.IsEmpty() {
		return geo, ErrNoData
	}
	return geo, nil
}

var _ Locator = (*IPAPI)(nil)
