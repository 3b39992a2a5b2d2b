package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"outlay/internal/export"
)

// Config carries everything needed to talk to one spreadsheet. Inline
// JSON wins over the file variant for both credentials.
type Config struct {
	SpreadsheetID   string
	SheetBaseName   string
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

// Client mirrors expense rows into a Google spreadsheet. Each calendar
// year gets its own tab ("2025 Expenses"); rows carry the expense id in
// the last column so deletes can find them again.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

// Ensure interface conformance
var (
	_ export.RowAppender = (*Client)(nil)
	_ export.RowDeleter  = (*Client)(nil)
)

// New creates a Sheets client from OAuth credentials minted by
// cmd/oauth-init.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetBase := strings.TrimSpace(cfg.SheetBaseName)
	if sheetBase == "" {
		sheetBase = "Expenses"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
	}, nil
}

// newSheetsService builds the API client from an OAuth client
// definition plus a previously issued token.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	clientJSON, err := readCredential(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read OAuth client: %w", err)
	}
	tokenJSON, err := readCredential(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read OAuth token: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse OAuth client: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parse OAuth token: %w", err)
	}

	// The token source refreshes expired tokens with the refresh token.
	httpClient := oauthCfg.Client(ctx, &token)
	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func readCredential(inline, file string) ([]byte, error) {
	if strings.TrimSpace(inline) != "" {
		return []byte(inline), nil
	}
	if strings.TrimSpace(file) != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read file %s: %w", file, err)
		}
		return b, nil
	}
	return nil, errors.New("no credential provided")
}

// Append writes the row to the tab for its year and returns the range
// it landed in. A row already carrying the same expense id is rewritten
// in place, so replaying an export after an update never duplicates it.
func (c *Client) Append(ctx context.Context, row export.Row) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if row.ExpenseID == "" {
		return "", errors.New("missing expense id")
	}
	sheetName, err := c.sheetFor(row)
	if err != nil {
		return "", err
	}

	// The id column doubles as the occupancy count: an id hit means
	// rewrite that row, a miss means the row after the last one.
	rng := fmt.Sprintf("%s!F:F", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rng, err)
	}
	targetRow := len(resp.Values) + 1
	for i, cells := range resp.Values {
		if len(cells) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(cells[0])) == row.ExpenseID {
			targetRow = i + 1 // ranges are 1-based
			break
		}
	}

	euros := float64(row.AmountCents) / 100.0
	dataRange := fmt.Sprintf("%s!A%d:F%d", sheetName, targetRow, targetRow)
	vr := &gsheet.ValueRange{Values: [][]any{{
		row.OccurredOn, row.Description, euros, row.Category, row.Username, row.ExpenseID,
	}}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write row to %s: %w", sheetName, err)
	}

	return dataRange, nil
}

// Delete finds the row carrying the expense id in its year tab and
// clears it. A row that is already gone is not an error.
func (c *Client) Delete(ctx context.Context, row export.Row) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if row.ExpenseID == "" {
		return errors.New("missing expense id")
	}
	sheetName, err := c.sheetFor(row)
	if err != nil {
		return err
	}

	rng := fmt.Sprintf("%s!F:F", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}

	rowIndex := -1
	for i, cells := range resp.Values {
		if len(cells) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(cells[0])) == row.ExpenseID {
			rowIndex = i + 1 // ranges are 1-based
			break
		}
	}
	if rowIndex == -1 {
		return nil
	}

	clearRange := fmt.Sprintf("%s!A%d:F%d", sheetName, rowIndex, rowIndex)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear row %s: %w", clearRange, err)
	}
	return nil
}

// sheetFor picks the tab for the row's calendar year.
func (c *Client) sheetFor(row export.Row) (string, error) {
	occurred, err := time.Parse("2006-01-02", row.OccurredOn)
	if err != nil {
		return "", fmt.Errorf("parse occurred_on %q: %w", row.OccurredOn, err)
	}
	return yearPrefixedName(c.sheetBase, occurred.Year()), nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
