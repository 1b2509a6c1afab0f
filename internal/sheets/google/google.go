package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// Ensure interface conformance
var (
	_ ports.RowAppender = (*Client)(nil)
	_ ports.IDLister    = (*Client)(nil)
)

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON []byte
}

// New creates a Sheets client authenticated with service account
// credentials. Extra options are appended after the credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(cfg.SheetName) == "" {
		cfg.SheetName = "Transactions"
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentSheets)

	svc, err := newSheetsService(ctx, cfg.CredentialsJSON, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		logger:        logger,
	}, nil
}

func newSheetsService(ctx context.Context, credentialsJSON []byte, logger *log.Logger, opts ...goption.ClientOption) (*gsheet.Service, error) {
	all := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	switch {
	case len(credentialsJSON) > 0:
		logger.InfoContext(ctx, "Creating Google Sheets service with Service Account",
			"credentials_size", len(credentialsJSON))
		all = append(all, goption.WithCredentialsJSON(credentialsJSON))
	case len(opts) == 0:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	all = append(all, opts...)

	service, err := gsheet.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Append adds r after the last row of the sheet and returns the updated
// A1 range.
func (c *Client) Append(ctx context.Context, r ports.Row) (string, error) {
	if err := validateRow(r); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := a1Range(c.sheetName, "A:G")
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(r)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", rng, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Appended row", log.FieldTransactionID, r.ID, "range", ref)
	return ref, nil
}

// MirroredIDs reads the id column. The header cell is skipped.
func (c *Client) MirroredIDs(ctx context.Context) (map[string]struct{}, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	col, err := c.readCol(ctx, "A:A")
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(col))
	for _, v := range col {
		if v == ports.Header[0] {
			continue
		}
		ids[v] = struct{}{}
	}
	return ids, nil
}

func (c *Client) readCol(ctx context.Context, col string) ([]string, error) {
	rng := a1Range(c.sheetName, col)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return firstColumn(resp.Values), nil
}
