package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/viewtally/viewtally/internal/handler/dto"
	"github.com/viewtally/viewtally/internal/middleware"
	"github.com/viewtally/viewtally/internal/service"
	"github.com/viewtally/viewtally/internal/visitor"
)

const (
	// stateCookieBase is the base name for chunked state cookies. Chunk i is
	// stored under "vt_state_i"; reassembly concatenates them in order.
	// Bracketed names would be nicer but are not valid cookie tokens.
	stateCookieBase = "vt_state"

	// VisitorKeyHeader carries the opaque key in cookieless mode.
	VisitorKeyHeader = "X-Visitor-Key"

	// visitorUserHeader and visitorRolesHeader let a trusted site backend
	// forward the authenticated visitor's identity for exclusion checks.
	visitorUserHeader  = "X-Visitor-User-ID"
	visitorRolesHeader = "X-Visitor-Roles"
)

// CountHandler handles the public counting endpoint.
type CountHandler struct {
	counter *service.Counter
	logger  *slog.Logger
}

// NewCountHandler creates a new CountHandler.
func NewCountHandler(counter *service.Counter, logger *slog.Logger) *CountHandler {
	return &CountHandler{
		counter: counter,
		logger:  logger.With("component", "handler.count"),
	}
}

// Count handles POST /api/v1/views/{id}.
//
// Cookie mode (default) round-trips the visitor state in chunked cookies.
// Cookieless mode is selected by the request body or by sending the
// X-Visitor-Key header; the refreshed key comes back in the same header.
func (h *CountHandler) Count(w http.ResponseWriter, r *http.Request) {
	contentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || contentID <= 0 {
		h.writeError(w, http.StatusBadRequest, "INVALID_ID", "Content ID must be a positive integer")
		return
	}

	// The body is optional; an empty or malformed body falls back to defaults.
	var body dto.CountRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	req := service.Request{
		ContentID: contentID,
		Mode:      service.ModeCookie,
		Visitor:   h.visitorFromRequest(r),
	}

	if key, ok := visitorKeyFromRequest(r, body); ok {
		req.Mode = service.ModeCookieless
		req.VisitorKey = key
	} else {
		req.RawState = readStateCookies(r)
	}

	result, err := h.counter.Process(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrContentNotFound) {
			h.writeError(w, http.StatusNotFound, "CONTENT_NOT_FOUND", "Content not found")
			return
		}
		h.logger.Error("count failed", "content_id", contentID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	response := dto.CountResponse{
		ContentID: result.ContentID,
		Counted:   result.Counted,
	}

	if req.Mode == service.ModeCookieless {
		response.VisitorKey = result.VisitorKey
		w.Header().Set(VisitorKeyHeader, result.VisitorKey)
	} else {
		writeStateCookies(w, r, result.Chunks)
	}

	writeJSON(w, http.StatusOK, response)
}

// visitorFromRequest assembles the exclusion-check view of the requester.
// Identity headers are only meaningful when set by a trusted proxy; the
// router does not expose them to untrusted callers directly.
func (h *CountHandler) visitorFromRequest(r *http.Request) service.Visitor {
	v := service.Visitor{
		IP:        middleware.ClientIP(r),
		IsCrawler: service.DetectCrawler(r.UserAgent()),
	}
	if raw := r.Header.Get(visitorUserHeader); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			v.UserID = id
		}
	}
	if raw := r.Header.Get(visitorRolesHeader); raw != "" {
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				v.Roles = append(v.Roles, role)
			}
		}
	}
	return v
}

// visitorKeyFromRequest reports whether the request opted into cookieless
// mode, and the key it carried (empty on first contact).
func visitorKeyFromRequest(r *http.Request, body dto.CountRequest) (string, bool) {
	if key, ok := r.Header[http.CanonicalHeaderKey(VisitorKeyHeader)]; ok {
		if len(key) > 0 {
			return key[0], true
		}
		return "", true
	}
	if body.Mode == string(service.ModeCookieless) {
		return "", true
	}
	return "", false
}

// stateCookieName returns the cookie name for chunk i.
func stateCookieName(i int) string {
	return fmt.Sprintf("%s_%d", stateCookieBase, i)
}

// readStateCookies reassembles the visitor state from chunked cookies.
// Chunks are read in index order until the first gap.
func readStateCookies(r *http.Request) string {
	var b strings.Builder
	for i := 0; ; i++ {
		c, err := r.Cookie(stateCookieName(i))
		if err != nil {
			break
		}
		b.WriteString(c.Value)
	}
	return b.String()
}

// writeStateCookies sends the refreshed state chunks back and expires any
// surplus chunk cookies left over from a previously larger state.
func writeStateCookies(w http.ResponseWriter, r *http.Request, chunks []visitor.Chunk) {
	for _, chunk := range chunks {
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookieName(chunk.Index),
			Value:    chunk.Value,
			Path:     "/",
			Expires:  chunk.ExpiresAt,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}

	// Delete trailing chunks the client still holds.
	for i := len(chunks); ; i++ {
		if _, err := r.Cookie(stateCookieName(i)); err != nil {
			break
		}
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookieName(i),
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}
}

// writeError writes an error response.
func (h *CountHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
