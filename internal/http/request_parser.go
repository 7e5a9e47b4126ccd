// Package http exposes the ledger as a JSON API.
//
// This file holds the request parsing helpers shared by the handlers:
// body decoding, dates, month parameters, series queries and paging.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/engine"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, using
// the current month for missing values. Present but malformed values are
// a validation error.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return MonthParams{}, fmt.Errorf("%w: invalid year %q", core.ErrValidation, v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, fmt.Errorf("%w: invalid month %q", core.ErrValidation, v)
		}
		params.Month = m
	}

	return params, nil
}

// decodeJSON reads a single JSON object from the request body into dst.
// Unknown fields are rejected so typos do not silently drop input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", core.ErrValidation)
		}
		return fmt.Errorf("%w: invalid request body: %v", core.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must hold a single JSON object", core.ErrValidation)
	}
	return nil
}

// parseDate accepts a calendar date (2006-01-02) or an RFC 3339 instant.
// Calendar dates are midnight UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q (want YYYY-MM-DD or RFC 3339)", core.ErrValidation, s)
}

// optionalDate parses s when present and returns the zero time otherwise.
func optionalDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return parseDate(s)
}

// optionalDatePtr is optionalDate for nullable fields.
func optionalDatePtr(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseBool(query url.Values, key string) (bool, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: invalid %s %q", core.ErrValidation, key, v)
	}
	return b, nil
}

func parseNonNegative(query url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", core.ErrValidation, key, v)
	}
	return n, nil
}

// splitIDs reads a list parameter given either repeated (?id=a&id=b) or
// comma separated (?id=a,b).
func splitIDs(query url.Values, key string) []string {
	var ids []string
	for _, raw := range query[key] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// parseSeriesQuery reads account_ids, start_date, end_date and period.
// Both dates are required; the end date is inclusive.
func parseSeriesQuery(query url.Values) (engine.SeriesQuery, error) {
	q := engine.SeriesQuery{AccountIDs: splitIDs(query, "account_ids")}

	startRaw, endRaw := query.Get("start_date"), query.Get("end_date")
	if strings.TrimSpace(startRaw) == "" || strings.TrimSpace(endRaw) == "" {
		return q, fmt.Errorf("%w: start_date and end_date are required", core.ErrValidation)
	}
	var err error
	if q.Start, err = parseDate(startRaw); err != nil {
		return q, err
	}
	if q.End, err = parseDate(endRaw); err != nil {
		return q, err
	}

	if q.Granularity, err = engine.ParseGranularity(query.Get("period")); err != nil {
		return q, err
	}
	return q, nil
}
