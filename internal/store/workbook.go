// Package store maps the journal onto the remote spreadsheet: one tab each
// for trades, tags and settings, plus a folder for trade screenshots.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/veritasvoid/TradeZen/internal/config"
	"github.com/veritasvoid/TradeZen/internal/errs"
	"github.com/veritasvoid/TradeZen/internal/ids"
	"github.com/veritasvoid/TradeZen/internal/journal"
	"github.com/veritasvoid/TradeZen/internal/models"
	"github.com/veritasvoid/TradeZen/internal/sheets"
	"go.uber.org/zap"
)

const (
	tradeDataRange   = "A2:L"
	tagDataRange     = "A2:E"
	settingDataRange = "A2:B"

	imageURLFormat = "https://drive.google.com/thumbnail?id=%s&sz=w800"
)

// Locations remembers where the journal lives in the remote store.
type Locations interface {
	SpreadsheetID() (string, error)
	SetSpreadsheetID(id string) error
	FolderID() (string, error)
	SetFolderID(id string) error
}

// Workbook is the journal spreadsheet.
type Workbook struct {
	client    sheets.Client
	locations Locations
	cfg       config.Journal
	ids       *ids.Generator
	logger    *zap.Logger
	now       func() time.Time

	// resolveMu serializes location lookups so a journal is created at most once.
	resolveMu     sync.Mutex
	spreadsheetID string
	folderID      string
}

// NewWorkbook creates a workbook over client.
func NewWorkbook(client sheets.Client, locations Locations, cfg *config.Journal, gen *ids.Generator, logger *zap.Logger) *Workbook {
	return &Workbook{
		client:    client,
		locations: locations,
		cfg:       *cfg,
		ids:       gen,
		logger:    logger.Named("workbook"),
		now:       time.Now,
	}
}

// recoverable reports whether a saved location should be given up on and
// searched for again.
func recoverable(err error) bool {
	return errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrAuthDenied)
}

// SpreadsheetID returns the journal spreadsheet. A saved id is checked first;
// when it no longer resolves the store is searched by title, and a new
// spreadsheet with header rows is created as a last resort.
func (w *Workbook) SpreadsheetID(ctx context.Context) (string, error) {
	w.resolveMu.Lock()
	defer w.resolveMu.Unlock()

	if w.spreadsheetID != "" {
		return w.spreadsheetID, nil
	}

	saved, err := w.locations.SpreadsheetID()
	if err != nil {
		w.logger.Warn("Failed to read saved spreadsheet id", zap.Error(err))
	}
	if saved != "" {
		err := w.client.GetSpreadsheet(ctx, saved)
		if err == nil {
			w.spreadsheetID = saved
			return saved, nil
		}
		if !recoverable(err) {
			return "", err
		}
		w.logger.Info("Saved spreadsheet not accessible, searching", zap.String("id", saved), zap.Error(err))
	}

	id, err := w.findOrCreateSpreadsheet(ctx)
	if err != nil {
		return "", err
	}
	if err := w.locations.SetSpreadsheetID(id); err != nil {
		w.logger.Warn("Failed to save spreadsheet id", zap.Error(err))
	}
	w.spreadsheetID = id
	return id, nil
}

func (w *Workbook) findOrCreateSpreadsheet(ctx context.Context) (string, error) {
	query := fmt.Sprintf("name=%s and mimeType='%s' and trashed=false", sheets.Quote(w.cfg.SpreadsheetTitle), sheets.MimeSpreadsheet)
	files, err := w.client.ListFiles(ctx, query)
	if err != nil {
		return "", err
	}
	if len(files) > 0 {
		w.logger.Info("Found existing journal spreadsheet", zap.String("id", files[0].ID))
		return files[0].ID, nil
	}

	w.logger.Info("Creating journal spreadsheet", zap.String("title", w.cfg.SpreadsheetTitle))
	return w.client.CreateSpreadsheet(ctx, w.cfg.SpreadsheetTitle, []sheets.Tab{
		{Title: SheetTrades, Columns: len(TradeColumns), Rows: 1000, Header: TradeColumns},
		{Title: SheetTags, Columns: len(TagColumns), Rows: 1000, Header: TagColumns},
		{Title: SheetSettings, Columns: len(SettingColumns), Rows: 1000, Header: SettingColumns},
	})
}

// withSpreadsheet runs fn against the journal. When fn fails with NotFound
// and the spreadsheet itself has gone missing, the location is resolved again
// and fn runs once more against the recovered spreadsheet.
func (w *Workbook) withSpreadsheet(ctx context.Context, fn func(id string) error) error {
	id, err := w.SpreadsheetID(ctx)
	if err != nil {
		return err
	}
	err = fn(id)
	if !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if probeErr := w.client.GetSpreadsheet(ctx, id); !errors.Is(probeErr, errs.ErrNotFound) {
		return err
	}

	w.logger.Warn("Journal spreadsheet disappeared, recovering", zap.String("id", id))
	w.resolveMu.Lock()
	if w.spreadsheetID == id {
		w.spreadsheetID = ""
	}
	w.resolveMu.Unlock()

	if id, err = w.SpreadsheetID(ctx); err != nil {
		return err
	}
	return fn(id)
}

// Probe is a cheap authenticated call used to validate the credential.
func (w *Workbook) Probe(ctx context.Context) error {
	_, err := w.SpreadsheetID(ctx)
	return err
}

func (w *Workbook) readTrades(ctx context.Context, id string) ([]models.Trade, []int, error) {
	rows, err := w.client.GetRows(ctx, id, SheetTrades, tradeDataRange)
	if err != nil {
		return nil, nil, err
	}
	trades := make([]models.Trade, 0, len(rows))
	rowNumbers := make([]int, 0, len(rows))
	for i, row := range rows {
		t, err := decodeTrade(row)
		if err != nil {
			if !errors.Is(err, errBlankRow) {
				w.logger.Warn("Skipping malformed trade row", zap.Int("row", i+2), zap.Error(err))
			}
			continue
		}
		trades = append(trades, t)
		rowNumbers = append(rowNumbers, i+2)
	}
	return trades, rowNumbers, nil
}

// ListTrades returns every readable trade in sheet order.
func (w *Workbook) ListTrades(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	err := w.withSpreadsheet(ctx, func(id string) (err error) {
		trades, _, err = w.readTrades(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// MonthTrades returns the trades dated in month of year.
func (w *Workbook) MonthTrades(ctx context.Context, year int, month time.Month) ([]models.Trade, error) {
	trades, err := w.ListTrades(ctx)
	if err != nil {
		return nil, err
	}
	return journal.FilterByMonth(trades, year, month), nil
}

// AddTrade appends a trade, assigning its id and timestamps.
func (w *Workbook) AddTrade(ctx context.Context, t models.Trade) (models.Trade, error) {
	if t.ID == "" {
		t.ID = w.ids.New("trade")
	}
	if t.TagID == "" {
		t.TagID = models.NoTag
	}
	now := w.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	err := w.withSpreadsheet(ctx, func(id string) error {
		return w.client.AppendRows(ctx, id, SheetTrades, [][]string{encodeTrade(t)})
	})
	if err != nil {
		return models.Trade{}, fmt.Errorf("failed to add trade: %w", err)
	}
	w.logger.Info("Trade added", zap.String("id", t.ID), zap.String("date", t.Date), zap.String("amount", t.Amount.String()))
	return t, nil
}

// UpdateTrade replaces a trade in full. CreatedAt is kept from the stored row.
func (w *Workbook) UpdateTrade(ctx context.Context, t models.Trade) (models.Trade, error) {
	if t.TagID == "" {
		t.TagID = models.NoTag
	}
	err := w.withSpreadsheet(ctx, func(id string) error {
		trades, rowNumbers, err := w.readTrades(ctx, id)
		if err != nil {
			return err
		}
		for i, existing := range trades {
			if existing.ID != t.ID {
				continue
			}
			t.CreatedAt = existing.CreatedAt
			t.UpdatedAt = w.now().UTC()
			return w.client.UpdateRows(ctx, id, SheetTrades, rowRange("L", rowNumbers[i]), [][]string{encodeTrade(t)})
		}
		return fmt.Errorf("%w: trade %s", errs.ErrNotFound, t.ID)
	})
	if err != nil {
		return models.Trade{}, fmt.Errorf("failed to update trade: %w", err)
	}
	w.logger.Info("Trade updated", zap.String("id", t.ID))
	return t, nil
}

// DeleteTrade blanks the trade's row. Blank rows are skipped on read.
func (w *Workbook) DeleteTrade(ctx context.Context, tradeID string) error {
	err := w.withSpreadsheet(ctx, func(id string) error {
		trades, rowNumbers, err := w.readTrades(ctx, id)
		if err != nil {
			return err
		}
		for i, existing := range trades {
			if existing.ID == tradeID {
				return w.client.ClearRange(ctx, id, SheetTrades, rowRange("L", rowNumbers[i]))
			}
		}
		return fmt.Errorf("%w: trade %s", errs.ErrNotFound, tradeID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	w.logger.Info("Trade deleted", zap.String("id", tradeID))
	return nil
}

func (w *Workbook) readTags(ctx context.Context, id string) ([]models.Tag, []int, error) {
	rows, err := w.client.GetRows(ctx, id, SheetTags, tagDataRange)
	if err != nil {
		return nil, nil, err
	}
	tags := make([]models.Tag, 0, len(rows))
	rowNumbers := make([]int, 0, len(rows))
	for i, row := range rows {
		t, err := decodeTag(row)
		if err != nil {
			if !errors.Is(err, errBlankRow) {
				w.logger.Warn("Skipping malformed tag row", zap.Int("row", i+2), zap.Error(err))
			}
			continue
		}
		tags = append(tags, t)
		rowNumbers = append(rowNumbers, i+2)
	}
	return tags, rowNumbers, nil
}

// ListTags returns the live tag definitions by display order.
func (w *Workbook) ListTags(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	err := w.withSpreadsheet(ctx, func(id string) (err error) {
		tags, _, err = w.readTags(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return journal.SortTags(tags), nil
}

// GetTag looks up a live tag definition.
func (w *Workbook) GetTag(ctx context.Context, tagID string) (models.Tag, bool, error) {
	tags, err := w.ListTags(ctx)
	if err != nil {
		return models.Tag{}, false, err
	}
	for _, t := range tags {
		if t.ID == tagID {
			return t, true, nil
		}
	}
	return models.Tag{}, false, nil
}

// AddTag appends a tag. A zero Order places it after the existing tags.
func (w *Workbook) AddTag(ctx context.Context, t models.Tag) (models.Tag, error) {
	if t.ID == "" {
		t.ID = w.ids.New("tag")
	}
	err := w.withSpreadsheet(ctx, func(id string) error {
		if t.Order == 0 {
			tags, _, err := w.readTags(ctx, id)
			if err != nil {
				return err
			}
			for _, existing := range tags {
				if existing.Order >= t.Order {
					t.Order = existing.Order + 1
				}
			}
		}
		return w.client.AppendRows(ctx, id, SheetTags, [][]string{encodeTag(t)})
	})
	if err != nil {
		return models.Tag{}, fmt.Errorf("failed to add tag: %w", err)
	}
	w.logger.Info("Tag added", zap.String("id", t.ID), zap.String("name", t.Name))
	return t, nil
}

// UpdateTag replaces a tag definition. Trades keep the appearance recorded
// when they were written.
func (w *Workbook) UpdateTag(ctx context.Context, t models.Tag) (models.Tag, error) {
	err := w.withSpreadsheet(ctx, func(id string) error {
		tags, rowNumbers, err := w.readTags(ctx, id)
		if err != nil {
			return err
		}
		for i, existing := range tags {
			if existing.ID == t.ID {
				return w.client.UpdateRows(ctx, id, SheetTags, rowRange("E", rowNumbers[i]), [][]string{encodeTag(t)})
			}
		}
		return fmt.Errorf("%w: tag %s", errs.ErrNotFound, t.ID)
	})
	if err != nil {
		return models.Tag{}, fmt.Errorf("failed to update tag: %w", err)
	}
	return t, nil
}

// DeleteTag removes a tag definition. Trades referencing it are left as they are.
func (w *Workbook) DeleteTag(ctx context.Context, tagID string) error {
	err := w.withSpreadsheet(ctx, func(id string) error {
		tags, rowNumbers, err := w.readTags(ctx, id)
		if err != nil {
			return err
		}
		for i, existing := range tags {
			if existing.ID == tagID {
				return w.client.ClearRange(ctx, id, SheetTags, rowRange("E", rowNumbers[i]))
			}
		}
		return fmt.Errorf("%w: tag %s", errs.ErrNotFound, tagID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	w.logger.Info("Tag deleted", zap.String("id", tagID))
	return nil
}

// ReadSettings returns the raw key/value rows of the Settings tab.
func (w *Workbook) ReadSettings(ctx context.Context) (map[string]string, error) {
	values := make(map[string]string)
	err := w.withSpreadsheet(ctx, func(id string) error {
		rows, err := w.client.GetRows(ctx, id, SheetSettings, settingDataRange)
		if err != nil {
			return err
		}
		for _, row := range rows {
			// Rows without a value cell are incomplete writes.
			if key := cell(row, 0); key != "" && len(row) >= 2 {
				values[key] = cell(row, 1)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return values, nil
}

// WriteSettings stores values with one read and one write: existing keys are
// updated where they are, new keys are appended in key order.
func (w *Workbook) WriteSettings(ctx context.Context, values map[string]string) error {
	err := w.withSpreadsheet(ctx, func(id string) error {
		rows, err := w.client.GetRows(ctx, id, SheetSettings, settingDataRange)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(rows))
		out := make([][]string, 0, len(rows)+len(values))
		for _, row := range rows {
			key := cell(row, 0)
			if value, ok := values[key]; ok && key != "" {
				out = append(out, []string{key, value})
				seen[key] = true
				continue
			}
			out = append(out, []string{key, cell(row, 1)})
		}

		var added []string
		for key := range values {
			if !seen[key] {
				added = append(added, key)
			}
		}
		sort.Strings(added)
		for _, key := range added {
			out = append(out, []string{key, values[key]})
		}
		if len(out) == 0 {
			return nil
		}

		rng := fmt.Sprintf("A2:B%d", len(out)+1)
		return w.client.UpdateRows(ctx, id, SheetSettings, rng, out)
	})
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// ScreenshotsFolder returns the folder uploads go to, creating the root
// folder and its screenshots sub-folder when they do not exist.
func (w *Workbook) ScreenshotsFolder(ctx context.Context) (string, error) {
	w.resolveMu.Lock()
	defer w.resolveMu.Unlock()

	if w.folderID != "" {
		return w.folderID, nil
	}

	saved, err := w.locations.FolderID()
	if err != nil {
		w.logger.Warn("Failed to read saved folder id", zap.Error(err))
	}
	if saved != "" {
		_, err := w.client.GetFile(ctx, saved)
		if err == nil {
			w.folderID = saved
			return saved, nil
		}
		if !recoverable(err) {
			return "", err
		}
		w.logger.Info("Saved folder not accessible, searching", zap.String("id", saved), zap.Error(err))
	}

	rootID, err := w.findOrCreateFolder(ctx, w.cfg.RootFolder, "")
	if err != nil {
		return "", err
	}
	folderID, err := w.findOrCreateFolder(ctx, w.cfg.ScreenshotsFolder, rootID)
	if err != nil {
		return "", err
	}

	if err := w.locations.SetFolderID(folderID); err != nil {
		w.logger.Warn("Failed to save folder id", zap.Error(err))
	}
	w.folderID = folderID
	return folderID, nil
}

func (w *Workbook) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name=%s and mimeType='%s' and trashed=false", sheets.Quote(name), sheets.MimeFolder)
	if parentID != "" {
		query += fmt.Sprintf(" and %s in parents", sheets.Quote(parentID))
	}
	files, err := w.client.ListFiles(ctx, query)
	if err != nil {
		return "", err
	}
	if len(files) > 0 {
		return files[0].ID, nil
	}
	w.logger.Info("Creating folder", zap.String("name", name))
	return w.client.CreateFolder(ctx, name, parentID)
}

// ScreenshotName is the file name of a trade screenshot, e.g.
// Trade_2025-01-02_09-30.jpg. A missing time reads "unknown".
func ScreenshotName(date, clock string) string {
	if len(clock) > 5 {
		clock = clock[:5]
	}
	clock = strings.ReplaceAll(clock, ":", "-")
	if clock == "" {
		clock = "unknown"
	}
	return fmt.Sprintf("Trade_%s_%s.jpg", date, clock)
}

// UploadScreenshot stores a JPEG in the screenshots folder and returns its file id.
func (w *Workbook) UploadScreenshot(ctx context.Context, data []byte, date, clock string) (string, error) {
	folderID, err := w.ScreenshotsFolder(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve screenshots folder: %w", err)
	}
	id, err := w.client.UploadBlob(ctx, data, sheets.FileMetadata{
		Name:     ScreenshotName(date, clock),
		MimeType: "image/jpeg",
		Parents:  []string{folderID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload screenshot: %w", err)
	}
	return id, nil
}

// ImageURL is the thumbnail URL of an uploaded screenshot.
func ImageURL(fileID string) string {
	if fileID == "" {
		return ""
	}
	return fmt.Sprintf(imageURLFormat, fileID)
}
