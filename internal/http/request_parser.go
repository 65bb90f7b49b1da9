// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lifelog/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// DecodeJSON reads the request body into v. Unknown fields are rejected and
// an empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// amountValue accepts an amount as a JSON string or number.
type amountValue string

func (a *amountValue) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountValue(s)
		return nil
	}
	*a = amountValue(b)
	return nil
}

func (a *amountValue) decimal() (*decimal.Decimal, error) {
	if a == nil {
		return nil, nil
	}
	d, err := core.ParseAmount(string(*a))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parseDayInput parses a YYYY-MM-DD value as local midnight. An empty value
// gives the zero time, which lets the store stamp the write time.
func parseDayInput(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return core.ParseDay(s)
}

// parseDatePatch is parseDayInput for optional patch fields.
func parseDatePatch(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseDayInput(*s)
	if err != nil {
		return nil, err
	}
	if t.IsZero() {
		return nil, nil
	}
	return &t, nil
}

// parseYear extracts the year query parameter, defaulting to now.
func parseYear(r *http.Request, now time.Time) int {
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y > 0 {
			return y
		}
	}
	return now.Year()
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// sanitizePtr applies sanitizeInput to an optional field.
func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// dayString renders a date as YYYY-MM-DD, or "" for the zero time.
func dayString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return core.DayKey(t)
}
