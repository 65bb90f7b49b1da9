package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lifelog/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid", `{"name":"ok"}`, "ok", false},
		{"empty body", ``, "", false},
		{"unknown field", `{"name":"ok","extra":1}`, "", true},
		{"unknown field first", `{"extra":1}`, "", true},
		{"malformed", `{"name":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.input))
			var b body
			err := DecodeJSON(r, &b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if b.Name != tt.want {
				t.Errorf("Name = %q, want %q", b.Name, tt.want)
			}
		})
	}
}

func TestAmountValue(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{`{"amount":"12,5"}`, "12.5", false},
		{`{"amount":50}`, "50", false},
		{`{"amount":0.1}`, "0.1", false},
		{`{"amount":"abc"}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var req transactionRequest
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.input))
			if err := DecodeJSON(r, &req); err != nil {
				t.Fatal(err)
			}
			d, err := req.Amount.decimal()
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidAmount) {
					t.Fatalf("err = %v, want ErrInvalidAmount", err)
				}
				return
			}
			if err != nil || d.String() != tt.want {
				t.Fatalf("decimal() = %v, %v; want %s", d, err, tt.want)
			}
		})
	}

	var missing *amountValue
	if d, err := missing.decimal(); d != nil || err != nil {
		t.Fatalf("nil amount = %v, %v", d, err)
	}
}

func TestParseDatePatch(t *testing.T) {
	if d, err := parseDatePatch(nil); d != nil || err != nil {
		t.Fatalf("nil = %v, %v", d, err)
	}
	blank := ""
	if d, err := parseDatePatch(&blank); d != nil || err != nil {
		t.Fatalf("blank = %v, %v", d, err)
	}
	bad := "2025-13-01"
	if _, err := parseDatePatch(&bad); !errors.Is(err, core.ErrInvalidDay) {
		t.Fatalf("bad = %v", err)
	}
	good := "2025-06-10"
	d, err := parseDatePatch(&good)
	if err != nil || core.DayKey(*d) != good {
		t.Fatalf("good = %v, %v", d, err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := bearerToken(r)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  caf\x00é\t "); got != "café" {
		t.Errorf("sanitizeInput = %q", got)
	}
}
