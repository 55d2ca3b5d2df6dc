package sheets

import (
	"context"
	"strings"
)

const (
	MimeSpreadsheet = "application/vnd.google-apps.spreadsheet"
	MimeFolder      = "application/vnd.google-apps.folder"
)

// Client is the remote tabular store: spreadsheet tabs addressed by A1 ranges,
// plus a file store for folders and uploaded blobs. Every call needs the
// current access credential and fails with errs.ErrUnauthenticated without one.
type Client interface {
	GetRows(ctx context.Context, spreadsheetID, sheet, rng string) ([][]string, error)
	UpdateRows(ctx context.Context, spreadsheetID, sheet, rng string, rows [][]string) error
	AppendRows(ctx context.Context, spreadsheetID, sheet string, rows [][]string) error
	ClearRange(ctx context.Context, spreadsheetID, sheet, rng string) error

	GetSpreadsheet(ctx context.Context, spreadsheetID string) error
	CreateSpreadsheet(ctx context.Context, title string, tabs []Tab) (string, error)

	ListFiles(ctx context.Context, query string) ([]File, error)
	GetFile(ctx context.Context, fileID string) (*File, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	UploadBlob(ctx context.Context, data []byte, meta FileMetadata) (string, error)
}

// TokenSource hands out the current access credential.
type TokenSource interface {
	AccessToken() (string, error)
}

// Tab describes one sheet of a new spreadsheet. Header becomes row 1.
type Tab struct {
	Title   string
	Columns int
	Rows    int
	Header  []string
}

// File is a file or folder in the remote file store.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Trashed  bool   `json:"trashed,omitempty"`
}

// FileMetadata describes an upload.
type FileMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

// A1 joins a sheet name and a range into A1 notation, e.g. Trades!A2:L.
func A1(sheet, rng string) string {
	if strings.ContainsAny(sheet, " '!") {
		sheet = "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	if rng == "" {
		return sheet
	}
	return sheet + "!" + rng
}

// Quote escapes a literal for use inside a file query string.
func Quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
