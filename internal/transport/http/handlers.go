package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/joshdurbin/shortlinks/internal/domain"
	"github.com/joshdurbin/shortlinks/internal/service"
)

// Handler holds the HTTP handlers for the link service
type Handler struct {
	links   service.LinkService
	baseURL string
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler. An empty baseURL makes short links
// relative to the scheme and host of each create request.
func NewHandler(links service.LinkService, baseURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		links:   links,
		baseURL: baseURL,
		logger:  logger,
	}
}

// CreateLink handles POST /shorturls
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "validity" {
			h.fail(w, r, fmt.Errorf("%w: got %s", domain.ErrInvalidValidity, typeErr.Value), "create link failed")
			return
		}
		h.logger.Debug("invalid JSON in create request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	created, err := h.links.Create(r.Context(), domain.CreateLinkParams{
		TargetURL:       req.URL,
		ValidityMinutes: req.Validity,
		RequestedCode:   req.ShortCode,
	})
	if err != nil {
		h.fail(w, r, err, "create link failed", "url", req.URL)
		return
	}

	writeJSON(w, http.StatusCreated, domain.CreateLinkResponse{
		Code:      created.Code,
		ShortLink: h.shortLinkBase(r) + "/" + created.Code,
		Expiry:    created.ExpiresAt,
	})
}

// LinkStats handles GET /shorturls/{code}
func (h *Handler) LinkStats(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	stats, err := h.links.Inspect(r.Context(), code)
	if err != nil {
		h.fail(w, r, err, "inspect link failed", "code", code)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Redirect handles GET /{code}
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	target, err := h.links.Resolve(r.Context(), code, r.RemoteAddr, r.Referer())
	if err != nil {
		h.fail(w, r, err, "resolve link failed", "code", code)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// Healthz handles GET /_/healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// NotFound answers unmatched routes with the JSON error body
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

// MethodNotAllowed answers known paths requested with the wrong method
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string, args ...any) {
	status := errorStatus(err)
	args = append(args, "error", err, "status", status)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, args...)
		writeError(w, status, http.StatusText(status))
		return
	}
	h.logger.Debug(msg, args...)
	writeError(w, status, err.Error())
}

func (h *Handler) shortLinkBase(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host
}

// errorStatus maps service errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case domain.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCodeConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, domain.ErrorResponse{Error: msg})
}
