package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil); !errors.Is(err, ErrMissingSpreadsheetID) {
		t.Fatalf("err = %v", err)
	}
}

func TestCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	if _, err := credentials(Config{}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("no credentials: %v", err)
	}
	if b, err := credentials(Config{CredentialsJSON: ` {"type":"service_account"} `}); err != nil || string(b) != `{"type":"service_account"}` {
		t.Fatalf("inline = %q %v", b, err)
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if b, err := credentials(Config{CredentialsFile: path}); err != nil || !strings.Contains(string(b), "file") {
		t.Fatalf("file = %q %v", b, err)
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)
	if b, err := credentials(Config{}); err != nil || !strings.Contains(string(b), "file") {
		t.Fatalf("env fallback = %q %v", b, err)
	}
}

const testOAuthClient = `{"installed":{"client_id":"id-1","client_secret":"secret","auth_uri":"https://accounts.example.com/auth","token_uri":"https://accounts.example.com/token","redirect_uris":["http://localhost"]}}`

func TestOAuthConfig(t *testing.T) {
	if _, err := OAuthClient(Config{}); !errors.Is(err, ErrMissingOAuthClient) {
		t.Fatalf("no client: %v", err)
	}
	b, err := OAuthClient(Config{OAuthClientJSON: testOAuthClient})
	if err != nil {
		t.Fatal(err)
	}

	oc, err := OAuthConfig(b, "http://localhost:8085/callback")
	if err != nil {
		t.Fatalf("OAuthConfig: %v", err)
	}
	if oc.ClientID != "id-1" || oc.RedirectURL != "http://localhost:8085/callback" {
		t.Fatalf("config = %+v", oc)
	}
	if len(oc.Scopes) != 1 || oc.Scopes[0] != gsheet.SpreadsheetsScope {
		t.Fatalf("scopes = %v", oc.Scopes)
	}
	if _, err := OAuthConfig([]byte(`{}`), ""); err == nil {
		t.Fatal("expected error for an invalid client")
	}
}

func TestTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if _, err := LoadToken(path); err == nil {
		t.Fatal("expected error for a missing token")
	}

	if err := SaveToken(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v", info.Mode().Perm())
	}
	tok, err := LoadToken(path)
	if err != nil || tok.RefreshToken != "r" {
		t.Fatalf("token = %+v %v", tok, err)
	}
}

func TestClientOptionUsesTokenFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.json")
	_, err := clientOption(context.Background(), Config{OAuthClientJSON: testOAuthClient, OAuthTokenFile: missing})
	if err == nil || !strings.Contains(err.Error(), "read OAuth token") {
		t.Fatalf("err = %v", err)
	}
	_, err = clientOption(context.Background(), Config{OAuthTokenFile: missing})
	if !errors.Is(err, ErrMissingOAuthClient) {
		t.Fatalf("err = %v", err)
	}
}

func TestAppendRows(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		got   gsheet.ValueRange
		query string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path)
		query = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	svc, err := gsheet.NewService(ctx, goption.WithEndpoint(srv.URL+"/"), goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	c := NewWithService(svc, "sheet-1", nil)

	rows := [][]string{{"Date", "Title", "Category", "Amount"}, {"2025-06-10", "Coffee", "Food", "50.25"}}
	if err := c.AppendRows(ctx, "expenses", rows); err != nil {
		t.Fatalf("append: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || !strings.Contains(paths[0], "/spreadsheets/sheet-1/values/") || !strings.HasSuffix(paths[0], ":append") {
		t.Fatalf("paths = %v", paths)
	}
	if !strings.Contains(query, "valueInputOption=RAW") {
		t.Fatalf("query = %s", query)
	}
	if len(got.Values) != 2 || got.Values[1][3] != "50.25" {
		t.Fatalf("values = %+v", got.Values)
	}

	if err := c.AppendRows(ctx, "expenses", nil); err != nil || len(paths) != 1 {
		t.Fatalf("empty append should not call the API: %v", err)
	}
}
