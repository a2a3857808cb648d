package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/viewtally/viewtally/internal/handler/dto"
	"github.com/viewtally/viewtally/internal/query"
	"github.com/viewtally/viewtally/internal/repository"
)

const (
	defaultListingLimit = 10
	maxListingLimit     = 100
)

// StatsHandler serves the read side: totals, period series, and the
// most-viewed listing.
type StatsHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(repo *repository.Repository, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		repo:   repo,
		logger: logger.With("component", "handler.stats"),
	}
}

// Total handles GET /api/v1/stats/total. The ids parameter is a
// comma-separated list of content ids; unknown ids contribute zero.
func (h *StatsHandler) Total(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDList(r.URL.Query().Get("ids"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_IDS", "ids must be a comma-separated list of positive integers")
		return
	}
	if len(ids) == 0 {
		h.writeError(w, http.StatusBadRequest, "INVALID_IDS", "ids parameter is required")
		return
	}

	total, err := h.repo.GetTotal(r.Context(), ids...)
	if err != nil {
		h.logger.Error("failed to get total views", "ids", len(ids), "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch view totals")
		return
	}

	writeJSON(w, http.StatusOK, dto.TotalResponse{Views: total})
}

// Series handles GET /api/v1/stats/series. The period parameters pick the
// bucket: year+month+day selects daily keys, year+week weekly, and so on.
// from/to accept dashed dates ("2024", "2024-03", "2024-03-15", "2024-W11")
// and bound a range instead. No period parameters, or invalid ones, selects
// the all-time bucket.
func (h *StatsHandler) Series(w http.ResponseWriter, r *http.Request) {
	period := parsePeriod(r)
	bucket, match := repository.MatchForPeriod(period)

	series, err := h.repo.GetSeries(r.Context(), splitComma(r.URL.Query().Get("types")), bucket, match)
	if err != nil {
		h.logger.Error("failed to get view series", "bucket", bucket.String(), "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch view series")
		return
	}

	writeJSON(w, http.StatusOK, dto.SeriesResponse{
		Bucket: bucket.String(),
		Series: series,
	})
}

// MostViewed handles GET /api/v1/stats/most-viewed: content ordered by view
// count within the selected period, most viewed first unless order=asc.
func (h *StatsHandler) MostViewed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	listing := query.Listing{
		ContentTypes: splitComma(q.Get("types")),
		Period:       parsePeriod(r),
		OrderByViews: true,
		Direction:    query.Desc,
		IncludeZero:  q.Get("include_zero") == "true" || q.Get("include_zero") == "1",
		Limit:        parseBoundedInt(q.Get("limit"), defaultListingLimit, maxListingLimit),
		Offset:       parseBoundedInt(q.Get("offset"), 0, 1<<31),
	}
	if strings.EqualFold(q.Get("order"), "asc") {
		listing.Direction = query.Asc
	}

	items, total, err := h.repo.ListContentWithViews(r.Context(), listing)
	if err != nil {
		h.logger.Error("failed to list most viewed content", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch most viewed content")
		return
	}

	writeJSON(w, http.StatusOK, dto.ToMostViewedResponse(items, total))
}

// parsePeriod reads the period filter from query parameters. Absent or
// non-numeric components are simply unset; validation and degradation happen
// when the filter is resolved against a bucket.
func parsePeriod(r *http.Request) *query.Period {
	q := r.URL.Query()
	p := &query.Period{
		Year:  atoiOrZero(q.Get("year")),
		Month: atoiOrZero(q.Get("month")),
		Day:   atoiOrZero(q.Get("day")),
		Week:  atoiOrZero(q.Get("week")),
	}
	if b := parseBound(q.Get("from")); b != nil {
		p.After = b
	}
	if b := parseBound(q.Get("to")); b != nil {
		p.Before = b
	}
	if *p == (query.Period{}) {
		return nil
	}
	return p
}

// parseBound parses a dashed period bound. Accepted forms, from coarsest to
// finest: "2024", "2024-03", "2024-03-15", "2024-W11". Bounds are inclusive.
func parseBound(s string) *query.Bound {
	if s == "" {
		return nil
	}
	b := &query.Bound{Inclusive: true}
	parts := strings.Split(s, "-")
	switch len(parts) {
	case 1:
		b.Year = atoiOrZero(parts[0])
	case 2:
		b.Year = atoiOrZero(parts[0])
		if wk, ok := strings.CutPrefix(parts[1], "W"); ok {
			b.Week = atoiOrZero(wk)
		} else {
			b.Month = atoiOrZero(parts[1])
		}
	case 3:
		b.Year = atoiOrZero(parts[0])
		b.Month = atoiOrZero(parts[1])
		b.Day = atoiOrZero(parts[2])
	default:
		return nil
	}
	if b.Year == 0 {
		return nil
	}
	return b
}

// parseIDList parses a comma-separated list of positive content ids.
func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range splitComma(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, strconv.ErrSyntax
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// splitComma splits a comma-separated parameter, trimming whitespace and
// dropping empty entries.
func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseBoundedInt parses a non-negative integer parameter, falling back to
// def when absent or invalid and clamping to max.
func parseBoundedInt(s string, def, max int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (h *StatsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
