package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/veritasvoid/TradeZen/internal/models"
)

const (
	SheetTrades   = "Trades"
	SheetTags     = "Tags"
	SheetSettings = "Settings"
)

// Header rows, in column order.
var (
	TradeColumns = []string{
		"tradeId", "date", "time", "amount",
		"tagId", "tagName", "tagColor", "tagEmoji",
		"driveImageId", "notes", "createdAt", "updatedAt",
	}
	TagColumns     = []string{"tagId", "name", "color", "emoji", "order"}
	SettingColumns = []string{"key", "value"}
)

var errBlankRow = errors.New("blank row")

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseTimestamp is lenient: audit timestamps never make a row unreadable.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeTrade(t models.Trade) []string {
	return []string{
		t.ID,
		t.Date,
		t.Time,
		t.Amount.String(),
		t.TagID,
		t.TagName,
		t.TagColor,
		t.TagEmoji,
		t.ImageRef,
		t.Notes,
		formatTimestamp(t.CreatedAt),
		formatTimestamp(t.UpdatedAt),
	}
}

// decodeTrade validates a Trades row. Rows without an id, with an unparseable
// date or a non-numeric amount are rejected here so the aggregation code only
// ever sees well-typed trades.
func decodeTrade(row []string) (models.Trade, error) {
	if blank(row) {
		return models.Trade{}, errBlankRow
	}
	t := models.Trade{
		ID:        cell(row, 0),
		Date:      cell(row, 1),
		Time:      cell(row, 2),
		TagID:     cell(row, 4),
		TagName:   cell(row, 5),
		TagColor:  cell(row, 6),
		TagEmoji:  cell(row, 7),
		ImageRef:  cell(row, 8),
		Notes:     cell(row, 9),
		CreatedAt: parseTimestamp(cell(row, 10)),
		UpdatedAt: parseTimestamp(cell(row, 11)),
	}
	if t.ID == "" {
		return models.Trade{}, errors.New("missing trade id")
	}
	if _, err := t.Day(); err != nil {
		return models.Trade{}, fmt.Errorf("trade %s: invalid date %q", t.ID, t.Date)
	}
	amount, err := decimal.NewFromString(cell(row, 3))
	if err != nil {
		return models.Trade{}, fmt.Errorf("trade %s: invalid amount %q", t.ID, cell(row, 3))
	}
	t.Amount = amount
	return t, nil
}

func encodeTag(t models.Tag) []string {
	return []string{t.ID, t.Name, t.Color, t.Emoji, cast.ToString(t.Order)}
}

func decodeTag(row []string) (models.Tag, error) {
	if blank(row) {
		return models.Tag{}, errBlankRow
	}
	t := models.Tag{
		ID:    cell(row, 0),
		Name:  cell(row, 1),
		Color: cell(row, 2),
		Emoji: cell(row, 3),
	}
	if t.ID == "" {
		return models.Tag{}, errors.New("missing tag id")
	}
	if raw := cell(row, 4); raw != "" {
		order, err := cast.ToIntE(raw)
		if err != nil {
			return models.Tag{}, fmt.Errorf("tag %s: invalid order %q", t.ID, raw)
		}
		t.Order = order
	}
	return t, nil
}

// rowRange addresses one full data row; n is the 1-based sheet row.
func rowRange(lastColumn string, n int) string {
	return fmt.Sprintf("A%d:%s%d", n, lastColumn, n)
}
