package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

// Client reads rows from the studio's Google Sheet. The sheet is the system
// of record for the class catalog and the owner's call availability; the
// service only ever reads it.
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	logger        *logging.Logger
}

// New creates a read-only sheets client authenticated with an API key.
func New(ctx context.Context, apiKey, spreadsheetID string, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("sheets: api key is required")
	}
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	svc, err := sheetsapi.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to create service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID, logger: logger}, nil
}

// ReadTab fetches all rows from the named tab. Cells come back as trimmed
// strings; missing trailing cells are left out, so callers index defensively.
func (c *Client) ReadTab(ctx context.Context, tab string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, tab).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read tab %q: %w", tab, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			row = append(row, strings.TrimSpace(fmt.Sprint(cell)))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// TabReader is the narrow read surface consumed by the catalog and
// availability loaders. *Client satisfies it; tests inject fakes.
type TabReader interface {
	ReadTab(ctx context.Context, tab string) ([][]string, error)
}
