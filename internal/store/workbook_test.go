package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/veritasvoid/TradeZen/internal/config"
	"github.com/veritasvoid/TradeZen/internal/errs"
	"github.com/veritasvoid/TradeZen/internal/ids"
	"github.com/veritasvoid/TradeZen/internal/models"
	"github.com/veritasvoid/TradeZen/internal/sheets"
	"go.uber.org/zap"
)

// MockClient is a mock implementation of the sheets.Client interface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetRows(ctx context.Context, spreadsheetID, sheet, rng string) ([][]string, error) {
	args := m.Called(ctx, spreadsheetID, sheet, rng)
	rows, _ := args.Get(0).([][]string)
	return rows, args.Error(1)
}

func (m *MockClient) UpdateRows(ctx context.Context, spreadsheetID, sheet, rng string, rows [][]string) error {
	return m.Called(ctx, spreadsheetID, sheet, rng, rows).Error(0)
}

func (m *MockClient) AppendRows(ctx context.Context, spreadsheetID, sheet string, rows [][]string) error {
	return m.Called(ctx, spreadsheetID, sheet, rows).Error(0)
}

func (m *MockClient) ClearRange(ctx context.Context, spreadsheetID, sheet, rng string) error {
	return m.Called(ctx, spreadsheetID, sheet, rng).Error(0)
}

func (m *MockClient) GetSpreadsheet(ctx context.Context, spreadsheetID string) error {
	return m.Called(ctx, spreadsheetID).Error(0)
}

func (m *MockClient) CreateSpreadsheet(ctx context.Context, title string, tabs []sheets.Tab) (string, error) {
	args := m.Called(ctx, title, tabs)
	return args.String(0), args.Error(1)
}

func (m *MockClient) ListFiles(ctx context.Context, query string) ([]sheets.File, error) {
	args := m.Called(ctx, query)
	files, _ := args.Get(0).([]sheets.File)
	return files, args.Error(1)
}

func (m *MockClient) GetFile(ctx context.Context, fileID string) (*sheets.File, error) {
	args := m.Called(ctx, fileID)
	file, _ := args.Get(0).(*sheets.File)
	return file, args.Error(1)
}

func (m *MockClient) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	args := m.Called(ctx, name, parentID)
	return args.String(0), args.Error(1)
}

func (m *MockClient) UploadBlob(ctx context.Context, data []byte, meta sheets.FileMetadata) (string, error) {
	args := m.Called(ctx, data, meta)
	return args.String(0), args.Error(1)
}

type memoryLocations struct {
	spreadsheetID string
	folderID      string
}

func (l *memoryLocations) SpreadsheetID() (string, error)   { return l.spreadsheetID, nil }
func (l *memoryLocations) SetSpreadsheetID(id string) error { l.spreadsheetID = id; return nil }
func (l *memoryLocations) FolderID() (string, error)        { return l.folderID, nil }
func (l *memoryLocations) SetFolderID(id string) error      { l.folderID = id; return nil }

var fixedNow = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func setupWorkbook(client *MockClient, locations *memoryLocations) *Workbook {
	w := NewWorkbook(client, locations, &config.Journal{
		SpreadsheetTitle:  "TradeZen Journal",
		RootFolder:        "TradeZen",
		ScreenshotsFolder: "Screenshots",
	}, ids.NewGenerator(), zap.NewNop())
	w.now = func() time.Time { return fixedNow }
	return w
}

// withSheet returns a workbook whose saved spreadsheet "sheet-1" resolves.
func withSheet(client *MockClient) *Workbook {
	client.On("GetSpreadsheet", mock.Anything, "sheet-1").Return(nil).Once()
	return setupWorkbook(client, &memoryLocations{spreadsheetID: "sheet-1"})
}

func tradeRow(id, date, amount string) []string {
	return []string{id, date, "09:30", amount, "none", "", "", "", "", "", "", ""}
}

func TestSpreadsheetID(t *testing.T) {
	ctx := context.Background()

	t.Run("SavedIDStillValid", func(t *testing.T) {
		client := new(MockClient)
		w := withSheet(client)

		id, err := w.SpreadsheetID(ctx)
		require.NoError(t, err)
		assert.Equal(t, "sheet-1", id)

		// Resolved once per process.
		id, err = w.SpreadsheetID(ctx)
		require.NoError(t, err)
		assert.Equal(t, "sheet-1", id)
		client.AssertExpectations(t)
	})

	t.Run("SavedIDMissingFoundBySearch", func(t *testing.T) {
		client := new(MockClient)
		locations := &memoryLocations{spreadsheetID: "gone"}
		client.On("GetSpreadsheet", mock.Anything, "gone").Return(fmt.Errorf("get: %w", errs.ErrNotFound))
		client.On("ListFiles", mock.Anything, "name='TradeZen Journal' and mimeType='"+sheets.MimeSpreadsheet+"' and trashed=false").
			Return([]sheets.File{{ID: "found"}, {ID: "older"}}, nil)
		w := setupWorkbook(client, locations)

		id, err := w.SpreadsheetID(ctx)

		require.NoError(t, err)
		assert.Equal(t, "found", id)
		assert.Equal(t, "found", locations.spreadsheetID)
		client.AssertNotCalled(t, "CreateSpreadsheet", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("NothingFoundCreates", func(t *testing.T) {
		client := new(MockClient)
		locations := &memoryLocations{}
		client.On("ListFiles", mock.Anything, mock.Anything).Return([]sheets.File{}, nil)
		client.On("CreateSpreadsheet", mock.Anything, "TradeZen Journal", mock.MatchedBy(func(tabs []sheets.Tab) bool {
			return len(tabs) == 3 &&
				tabs[0].Title == SheetTrades && len(tabs[0].Header) == 12 &&
				tabs[1].Title == SheetTags && len(tabs[1].Header) == 5 &&
				tabs[2].Title == SheetSettings && len(tabs[2].Header) == 2
		})).Return("created", nil)
		w := setupWorkbook(client, locations)

		id, err := w.SpreadsheetID(ctx)

		require.NoError(t, err)
		assert.Equal(t, "created", id)
		assert.Equal(t, "created", locations.spreadsheetID)
	})

	t.Run("TransientFailurePropagates", func(t *testing.T) {
		client := new(MockClient)
		client.On("GetSpreadsheet", mock.Anything, "sheet-1").Return(errs.ErrRemoteUnavailable)
		w := setupWorkbook(client, &memoryLocations{spreadsheetID: "sheet-1"})

		_, err := w.SpreadsheetID(ctx)

		assert.ErrorIs(t, err, errs.ErrRemoteUnavailable)
		client.AssertNotCalled(t, "ListFiles", mock.Anything, mock.Anything)
	})
}

func TestListTrades_SkipsBlankAndMalformedRows(t *testing.T) {
	client := new(MockClient)
	w := withSheet(client)
	client.On("GetRows", mock.Anything, "sheet-1", SheetTrades, "A2:L").Return([][]string{
		tradeRow("t1", "2025-01-02", "100"),
		{"", "", ""},
		tradeRow("t2", "not-a-date", "5"),
		tradeRow("t3", "2025-01-03", "abc"),
		{"t4", "2025-02-01", "", "-40.5", "tag1", "Scalp", "#f00", "⚡", "img-1", "note", "2025-02-01T10:00:00Z"},
	}, nil)

	trades, err := w.ListTrades(context.Background())

	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t1", trades[0].ID)
	assert.True(t, trades[0].Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "t4", trades[1].ID)
	assert.Equal(t, models.TagAppearance{Name: "Scalp", Color: "#f00", Emoji: "⚡"}, trades[1].RecordedTag())
	assert.Equal(t, "img-1", trades[1].ImageRef)
	assert.Equal(t, time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC), trades[1].CreatedAt)
	assert.True(t, trades[1].UpdatedAt.IsZero())
}

func TestMonthTrades(t *testing.T) {
	client := new(MockClient)
	w := withSheet(client)
	client.On("GetRows", mock.Anything, "sheet-1", SheetTrades, "A2:L").Return([][]string{
		tradeRow("t1", "2025-01-31", "1"),
		tradeRow("t2", "2025-02-01", "2"),
	}, nil)

	trades, err := w.MonthTrades(context.Background(), 2025, time.February)

	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t2", trades[0].ID)
}

func TestAddTrade(t *testing.T) {
	client := new(MockClient)
	w := withSheet(client)
	var appended [][]string
	client.On("AppendRows", mock.Anything, "sheet-1", SheetTrades, mock.Anything).
		Run(func(args mock.Arguments) { appended = args.Get(3).([][]string) }).
		Return(nil)

	trade, err := w.AddTrade(context.Background(), models.Trade{Date: "2025-03-04", Amount: decimal.RequireFromString("-12.5")})

	require.NoError(t, err)
	assert.Contains(t, trade.ID, "trade_")
	assert.Equal(t, models.NoTag, trade.TagID)
	require.Len(t, appended, 1)
	assert.Equal(t, []string{
		trade.ID, "2025-03-04", "", "-12.5", "none", "", "", "", "", "",
		"2025-03-04T10:00:00Z", "2025-03-04T10:00:00Z",
	}, appended[0])
}

func TestUpdateTrade(t *testing.T) {
	client := new(MockClient)
	w := withSheet(client)
	created := []string{"t2", "2025-01-05", "", "3", "none", "", "", "", "", "", "2025-01-05T08:00:00Z", ""}
	client.On("GetRows", mock.Anything, "sheet-1", SheetTrades, "A2:L").Return([][]string{
		tradeRow("t1", "2025-01-02", "100"),
		{},
		created,
	}, nil)
	client.On("UpdateRows", mock.Anything, "sheet-1", SheetTrades, "A4:L4", mock.Anything).Return(nil)

	trade := models.Trade{ID: "t2", Date: "2025-01-06", Amount: decimal.NewFromInt(7)}
	trade.ApplyTag(&models.Tag{ID: "tag1", Name: "Breakout", Color: "#0f0", Emoji: "🚀"})
	updated, err := w.UpdateTrade(context.Background(), trade)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC), updated.CreatedAt)
	assert.Equal(t, fixedNow, updated.UpdatedAt)
	client.AssertExpectations(t)
}

func TestUpdateTrade_NotFound(t *testing.T) {
	client := new(MockClient)
	w := withSheet(client)
	client.On("GetRows", mock.Anything, "sheet-1", SheetTrades, "A2:L").Return([][]string{tradeRow("t1", "2025-01-02", "1")}, nil)
	// The spreadsheet itself is fine, so there is nothing to recover.
	client.On("GetSpreadsheet", mock.Anything, "sheet-1").Return(nil)

	_, err := w.UpdateTrade(context.Background(), models.Trade{ID: "missing", Date: "2025-01-02"})

	assert.ErrorIs(t, err, errs.ErrNotFound)
	client.AssertNotCalled(t, "UpdateRows", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteTrade(t *testing.T) {
	client := new(MockClient)
	w := withSheet(client)
	client.On("GetRows", mock.Anything, "sheet-1", SheetTrades, "A2:L").Return([][]string{
		tradeRow("t1", "2025-01-02", "100"),
		tradeRow("t2", "2025-01-03", "-1"),
	}, nil)
	client.On("ClearRange", mock.Anything, "sheet-1", SheetTrades, "A3:L3").Return(nil)

	require.NoError(t, w.DeleteTrade(context.Background(), "t2"))
	client.AssertExpectations(t)
}

func TestWithSpreadsheet_RecoversDeletedSpreadsheet(t *testing.T) {
	client := new(MockClient)
	locations := &memoryLocations{spreadsheetID: "sheet-1"}
	w := setupWorkbook(client, locations)
	client.On("GetSpreadsheet", mock.Anything, "sheet-1").Return(nil).Once()
	client.On("GetRows", mock.Anything, "sheet-1", SheetTags, "A2:E").Return(nil, errs.ErrNotFound).Once()
	client.On("GetSpreadsheet", mock.Anything, "sheet-1").Return(errs.ErrNotFound)
	client.On("ListFiles", mock.Anything, mock.Anything).Return([]sheets.File{{ID: "sheet-2"}}, nil)
	client.On("GetRows", mock.Anything, "sheet-2", SheetTags, "A2:E").Return([][]string{{"tag1", "Scalp", "#f00", "⚡", "1"}}, nil)

	tags, err := w.ListTags(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []models.Tag{{ID: "tag1", Name: "Scalp", Color: "#f00", Emoji: "⚡", Order: 1}}, tags)
	assert.Equal(t, "sheet-2", locations.spreadsheetID)
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	rows := [][]string{
		{"tag2", "Swing", "#00f", "🌊", "2"},
		{"tag1", "Scalp", "#f00", "⚡", "1"},
		{"", "", "", "", ""},
	}

	t.Run("ListSortedByOrder", func(t *testing.T) {
		client := new(MockClient)
		w := withSheet(client)
		client.On("GetRows", mock.Anything, "sheet-1", SheetTags, "A2:E").Return(rows, nil)

		tags, err := w.ListTags(ctx)

		require.NoError(t, err)
		require.Len(t, tags, 2)
		assert.Equal(t, "tag1", tags[0].ID)
		assert.Equal(t, "tag2", tags[1].ID)

		tag, ok, err := w.GetTag(ctx, "tag2")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Swing", tag.Name)
	})

	t.Run("AddPlacesLast", func(t *testing.T) {
		client := new(MockClient)
		w := withSheet(client)
		client.On("GetRows", mock.Anything, "sheet-1", SheetTags, "A2:E").Return(rows, nil)
		client.On("AppendRows", mock.Anything, "sheet-1", SheetTags, mock.MatchedBy(func(r [][]string) bool {
			return len(r) == 1 && r[0][1] == "Reversal" && r[0][4] == "3"
		})).Return(nil)

		tag, err := w.AddTag(ctx, models.Tag{Name: "Reversal", Color: "#ff0", Emoji: "🔄"})

		require.NoError(t, err)
		assert.Equal(t, 3, tag.Order)
		assert.Contains(t, tag.ID, "tag_")
		client.AssertExpectations(t)
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		client := new(MockClient)
		w := withSheet(client)
		client.On("GetRows", mock.Anything, "sheet-1", SheetTags, "A2:E").Return(rows, nil)
		client.On("UpdateRows", mock.Anything, "sheet-1", SheetTags, "A3:E3", [][]string{{"tag1", "Scalping", "#f00", "⚡", "1"}}).Return(nil)
		client.On("ClearRange", mock.Anything, "sheet-1", SheetTags, "A2:E2").Return(nil)

		_, err := w.UpdateTag(ctx, models.Tag{ID: "tag1", Name: "Scalping", Color: "#f00", Emoji: "⚡", Order: 1})
		require.NoError(t, err)
		require.NoError(t, w.DeleteTag(ctx, "tag2"))
		client.AssertExpectations(t)
	})
}

func TestSettingsRows(t *testing.T) {
	ctx := context.Background()

	t.Run("Read", func(t *testing.T) {
		client := new(MockClient)
		w := withSheet(client)
		client.On("GetRows", mock.Anything, "sheet-1", SheetSettings, "A2:B").Return([][]string{
			{"currency", "€"},
			{"privacyMode", "true"},
			{"", "orphan"},
			{"incomplete"},
			{"blank", ""},
		}, nil)

		values, err := w.ReadSettings(ctx)

		require.NoError(t, err)
		assert.Equal(t, map[string]string{"currency": "€", "privacyMode": "true", "blank": ""}, values)
	})

	t.Run("WriteUpdatesInPlaceAndAppends", func(t *testing.T) {
		client := new(MockClient)
		w := withSheet(client)
		client.On("GetRows", mock.Anything, "sheet-1", SheetSettings, "A2:B").Return([][]string{
			{"currency", "$"},
			{"legacy", "x"},
			{"startingBalance", "100"},
		}, nil).Once()
		client.On("UpdateRows", mock.Anything, "sheet-1", SheetSettings, "A2:B5", [][]string{
			{"currency", "€"},
			{"legacy", "x"},
			{"startingBalance", "2500"},
			{"privacyMode", "false"},
		}).Return(nil).Once()

		err := w.WriteSettings(ctx, map[string]string{
			"currency":        "€",
			"startingBalance": "2500",
			"privacyMode":     "false",
		})

		require.NoError(t, err)
		client.AssertExpectations(t)
	})
}

func TestScreenshots(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesFolders", func(t *testing.T) {
		client := new(MockClient)
		locations := &memoryLocations{folderID: "trashed"}
		w := setupWorkbook(client, locations)
		client.On("GetFile", mock.Anything, "trashed").Return(nil, errs.ErrNotFound)
		client.On("ListFiles", mock.Anything, "name='TradeZen' and mimeType='"+sheets.MimeFolder+"' and trashed=false").
			Return([]sheets.File{{ID: "root"}}, nil)
		client.On("ListFiles", mock.Anything, "name='Screenshots' and mimeType='"+sheets.MimeFolder+"' and trashed=false and 'root' in parents").
			Return(nil, nil)
		client.On("CreateFolder", mock.Anything, "Screenshots", "root").Return("shots", nil)
		client.On("UploadBlob", mock.Anything, []byte("jpeg"), sheets.FileMetadata{
			Name:     "Trade_2025-01-02_09-30.jpg",
			MimeType: "image/jpeg",
			Parents:  []string{"shots"},
		}).Return("file-1", nil)

		id, err := w.UploadScreenshot(ctx, []byte("jpeg"), "2025-01-02", "09:30")

		require.NoError(t, err)
		assert.Equal(t, "file-1", id)
		assert.Equal(t, "shots", locations.folderID)
		client.AssertExpectations(t)
	})

	t.Run("Names", func(t *testing.T) {
		assert.Equal(t, "Trade_2025-01-02_unknown.jpg", ScreenshotName("2025-01-02", ""))
		assert.Equal(t, "Trade_2025-01-02_14-05.jpg", ScreenshotName("2025-01-02", "14:05:59"))
		assert.Equal(t, "https://drive.google.com/thumbnail?id=abc&sz=w800", ImageURL("abc"))
		assert.Empty(t, ImageURL(""))
	})
}
