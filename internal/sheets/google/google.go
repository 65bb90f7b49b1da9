// Package google appends export rows to a Google spreadsheet through the
// Sheets API, authenticated with service account credentials or with a user
// token obtained by cmd/lifelog-sheets-auth.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"lifelog/internal/log"
	"lifelog/internal/sheets"
)

var _ sheets.RowAppender = (*Client)(nil)

var (
	ErrMissingSpreadsheetID = errors.New("missing spreadsheet id")
	ErrMissingCredentials   = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	ErrMissingOAuthClient   = errors.New("missing OAuth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
)

type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string

	// With a token file the client acts as the user who authorized it
	// instead of a service account.
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenFile  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *log.Logger
}

// New builds a client from service account credentials. Inline JSON wins
// over a credentials file; GOOGLE_APPLICATION_CREDENTIALS is the last resort.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, ErrMissingSpreadsheetID
	}
	auth, err := clientOption(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, auth, goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID string, logger *log.Logger) *Client {
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		logger:        logger.OrDefault(log.ComponentSheets),
	}
}

func clientOption(ctx context.Context, cfg Config) (goption.ClientOption, error) {
	if strings.TrimSpace(cfg.OAuthTokenFile) == "" {
		creds, err := credentials(cfg)
		if err != nil {
			return nil, err
		}
		return goption.WithCredentialsJSON(creds), nil
	}
	client, err := OAuthClient(cfg)
	if err != nil {
		return nil, err
	}
	oc, err := OAuthConfig(client, "")
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(cfg.OAuthTokenFile)
	if err != nil {
		return nil, err
	}
	return goption.WithTokenSource(oc.TokenSource(ctx, tok)), nil
}

// OAuthClient returns the OAuth client secret, inline JSON first.
func OAuthClient(cfg Config) ([]byte, error) {
	if inline := strings.TrimSpace(cfg.OAuthClientJSON); inline != "" {
		return []byte(inline), nil
	}
	file := strings.TrimSpace(cfg.OAuthClientFile)
	if file == "" {
		return nil, ErrMissingOAuthClient
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read OAuth client file: %w", err)
	}
	return b, nil
}

// OAuthConfig parses a client secret for the spreadsheets scope. An empty
// redirectURL keeps the one in the secret.
func OAuthConfig(clientJSON []byte, redirectURL string) (*oauth2.Config, error) {
	oc, err := oauthgoogle.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse OAuth client: %w", err)
	}
	if redirectURL != "" {
		oc.RedirectURL = redirectURL
	}
	return oc, nil
}

// LoadToken reads a token written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read OAuth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode OAuth token: %w", err)
	}
	return &tok, nil
}

// SaveToken writes tok to path, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode OAuth token: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write OAuth token: %w", err)
	}
	return nil
}

func credentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, ErrMissingCredentials
	}
}

// AppendRows appends rows after the last filled row of sheet. Cells are
// written as raw strings so amounts keep their exact text.
func (c *Client) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	if sheet == "" {
		return sheets.ErrEmptySheet
	}
	if len(rows) == 0 {
		return nil
	}
	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		row := make([]any, len(r))
		for i, cell := range r {
			row[i] = cell
		}
		values = append(values, row)
	}

	rng := fmt.Sprintf("%s!A1", sheet)
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append rows to %s: %w", sheet, err)
	}
	c.logger.InfoContext(ctx, "Rows appended to spreadsheet", "sheet", sheet, log.FieldCount, len(rows))
	return nil
}
