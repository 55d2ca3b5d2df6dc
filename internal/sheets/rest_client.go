package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cast"
	"github.com/veritasvoid/TradeZen/internal/config"
	"github.com/veritasvoid/TradeZen/internal/errs"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const valueInputOption = "RAW"

// RestClient talks to the spreadsheet and drive REST APIs.
// It implements Client.
type RestClient struct {
	client    *resty.Client
	sheetsURL string
	driveURL  string
	uploadURL string
	tokens    TokenSource
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// ensure RestClient implements the interface
var _ Client = (*RestClient)(nil)

// NewRestClient creates a new remote store client.
func NewRestClient(cfg *config.Google, tokens TokenSource, logger *zap.Logger) *RestClient {
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:    resty.New(),
		sheetsURL: cfg.SheetsBaseURL,
		driveURL:  cfg.DriveBaseURL,
		uploadURL: cfg.UploadBaseURL,
		tokens:    tokens,
		logger:    logger.Named("sheets"),
		limiter:   limiter,
	}
}

// apiError is the error envelope both APIs return.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// doRequest authenticates, rate limits and executes a request, then maps the
// outcome onto the errs taxonomy. Failures are returned as-is; nothing is retried.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	token, err := c.tokens.AccessToken()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errs.ErrUnauthenticated
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", url))
	resp, err := req.SetContext(ctx).SetAuthToken(token).SetError(&apiError{}).Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err)
	}
	if !resp.IsError() {
		return resp, nil
	}

	msg := resp.Status()
	if e, ok := resp.Error().(*apiError); ok && e.Error.Message != "" {
		msg = e.Error.Message
	}

	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", errs.ErrUnauthenticated, msg)
	case http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", errs.ErrAuthDenied, msg)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, msg)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", errs.ErrRemoteUnavailable, resp.StatusCode(), msg)
	}
}

type valueRange struct {
	Range          string  `json:"range,omitempty"`
	MajorDimension string  `json:"majorDimension,omitempty"`
	Values         [][]any `json:"values"`
}

func toValues(rows [][]string) [][]any {
	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = make([]any, len(row))
		for j, cell := range row {
			values[i][j] = cell
		}
	}
	return values
}

// GetRows reads a range. Trailing empty cells are not returned by the API,
// so rows may be shorter than the range is wide.
func (c *RestClient) GetRows(ctx context.Context, spreadsheetID, sheet, rng string) ([][]string, error) {
	var result valueRange
	req := c.client.R().
		SetPathParams(map[string]string{"id": spreadsheetID, "range": A1(sheet, rng)}).
		SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, c.sheetsURL+"/spreadsheets/{id}/values/{range}", req); err != nil {
		return nil, fmt.Errorf("failed to get rows %s: %w", A1(sheet, rng), err)
	}

	rows := make([][]string, len(result.Values))
	for i, row := range result.Values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = cast.ToString(cell)
		}
	}
	return rows, nil
}

// UpdateRows overwrites a range with rows.
func (c *RestClient) UpdateRows(ctx context.Context, spreadsheetID, sheet, rng string, rows [][]string) error {
	target := A1(sheet, rng)
	req := c.client.R().
		SetPathParams(map[string]string{"id": spreadsheetID, "range": target}).
		SetQueryParam("valueInputOption", valueInputOption).
		SetBody(valueRange{Range: target, MajorDimension: "ROWS", Values: toValues(rows)})

	if _, err := c.doRequest(ctx, http.MethodPut, c.sheetsURL+"/spreadsheets/{id}/values/{range}", req); err != nil {
		return fmt.Errorf("failed to update rows %s: %w", target, err)
	}
	return nil
}

// AppendRows adds rows after the last non-empty row of sheet.
func (c *RestClient) AppendRows(ctx context.Context, spreadsheetID, sheet string, rows [][]string) error {
	target := A1(sheet, "A1")
	req := c.client.R().
		SetPathParams(map[string]string{"id": spreadsheetID, "range": target}).
		SetQueryParams(map[string]string{
			"valueInputOption": valueInputOption,
			"insertDataOption": "INSERT_ROWS",
		}).
		SetBody(valueRange{MajorDimension: "ROWS", Values: toValues(rows)})

	if _, err := c.doRequest(ctx, http.MethodPost, c.sheetsURL+"/spreadsheets/{id}/values/{range}:append", req); err != nil {
		return fmt.Errorf("failed to append rows to %s: %w", sheet, err)
	}
	return nil
}

// ClearRange empties the cells of a range without removing rows.
func (c *RestClient) ClearRange(ctx context.Context, spreadsheetID, sheet, rng string) error {
	target := A1(sheet, rng)
	req := c.client.R().
		SetPathParams(map[string]string{"id": spreadsheetID, "range": target}).
		SetBody(map[string]any{})

	if _, err := c.doRequest(ctx, http.MethodPost, c.sheetsURL+"/spreadsheets/{id}/values/{range}:clear", req); err != nil {
		return fmt.Errorf("failed to clear %s: %w", target, err)
	}
	return nil
}

// GetSpreadsheet is a cheap existence probe for a spreadsheet.
func (c *RestClient) GetSpreadsheet(ctx context.Context, spreadsheetID string) error {
	req := c.client.R().
		SetPathParam("id", spreadsheetID).
		SetQueryParam("fields", "spreadsheetId")

	if _, err := c.doRequest(ctx, http.MethodGet, c.sheetsURL+"/spreadsheets/{id}", req); err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	return nil
}

type gridProperties struct {
	RowCount    int `json:"rowCount"`
	ColumnCount int `json:"columnCount"`
}

type sheetProperties struct {
	Title          string          `json:"title"`
	GridProperties *gridProperties `json:"gridProperties,omitempty"`
}

type sheetSpec struct {
	Properties sheetProperties `json:"properties"`
}

type createSpreadsheetRequest struct {
	Properties struct {
		Title string `json:"title"`
	} `json:"properties"`
	Sheets []sheetSpec `json:"sheets"`
}

// CreateSpreadsheet creates a spreadsheet with one sheet per tab and writes
// each tab's header row.
func (c *RestClient) CreateSpreadsheet(ctx context.Context, title string, tabs []Tab) (string, error) {
	var body createSpreadsheetRequest
	body.Properties.Title = title
	for _, tab := range tabs {
		body.Sheets = append(body.Sheets, sheetSpec{Properties: sheetProperties{
			Title:          tab.Title,
			GridProperties: &gridProperties{RowCount: tab.Rows, ColumnCount: tab.Columns},
		}})
	}

	var result struct {
		SpreadsheetID string `json:"spreadsheetId"`
	}
	req := c.client.R().SetBody(body).SetResult(&result)
	if _, err := c.doRequest(ctx, http.MethodPost, c.sheetsURL+"/spreadsheets", req); err != nil {
		return "", fmt.Errorf("failed to create spreadsheet: %w", err)
	}

	for _, tab := range tabs {
		if len(tab.Header) == 0 {
			continue
		}
		if err := c.UpdateRows(ctx, result.SpreadsheetID, tab.Title, "A1", [][]string{tab.Header}); err != nil {
			return "", fmt.Errorf("failed to write %s header: %w", tab.Title, err)
		}
	}

	c.logger.Info("Created spreadsheet", zap.String("title", title), zap.String("id", result.SpreadsheetID))
	return result.SpreadsheetID, nil
}

// ListFiles searches the file store, newest first.
func (c *RestClient) ListFiles(ctx context.Context, query string) ([]File, error) {
	var result struct {
		Files []File `json:"files"`
	}
	req := c.client.R().
		SetQueryParams(map[string]string{
			"q":       query,
			"fields":  "files(id, name, mimeType)",
			"orderBy": "createdTime desc",
		}).
		SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, c.driveURL+"/files", req); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return result.Files, nil
}

// GetFile fetches file metadata. A trashed file counts as missing.
func (c *RestClient) GetFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	req := c.client.R().
		SetPathParam("id", fileID).
		SetQueryParam("fields", "id, name, mimeType, trashed").
		SetResult(&file)

	if _, err := c.doRequest(ctx, http.MethodGet, c.driveURL+"/files/{id}", req); err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if file.Trashed {
		return nil, fmt.Errorf("failed to get file: %w: %s is trashed", errs.ErrNotFound, fileID)
	}
	return &file, nil
}

// CreateFolder creates a folder, under parentID when it is not empty.
func (c *RestClient) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	meta := FileMetadata{Name: name, MimeType: MimeFolder}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	var result File
	req := c.client.R().
		SetQueryParam("fields", "id").
		SetBody(meta).
		SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodPost, c.driveURL+"/files", req); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", name, err)
	}
	return result.ID, nil
}

// UploadBlob stores data as a new file and returns its id.
func (c *RestClient) UploadBlob(ctx context.Context, data []byte, meta FileMetadata) (string, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode file metadata: %w", err)
	}

	var result File
	req := c.client.R().
		SetQueryParam("uploadType", "multipart").
		SetMultipartField("metadata", "", "application/json", bytes.NewReader(metaJSON)).
		SetMultipartField("file", meta.Name, meta.MimeType, bytes.NewReader(data)).
		SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodPost, c.uploadURL+"/files", req); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", meta.Name, err)
	}

	c.logger.Info("Uploaded file",
		zap.String("name", meta.Name),
		zap.String("id", result.ID),
		zap.Int("size", len(data)),
	)
	return result.ID, nil
}
