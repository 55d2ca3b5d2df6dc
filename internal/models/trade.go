package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NoTag is the tag id sentinel the journal stores for untagged trades.
const NoTag = "none"

// DateLayout is the calendar-day layout of Trade.Date. Dates carry no time zone.
const DateLayout = "2006-01-02"

// Trade is a single logged trade outcome, one row of the Trades sheet.
// The sign of Amount encodes win or loss; zero is neither.
type Trade struct {
	ID     string          `json:"tradeId"`
	Date   string          `json:"date"`
	Time   string          `json:"time,omitempty"`
	Amount decimal.Decimal `json:"amount"`

	// TagID is empty or NoTag for untagged trades. The tag display fields are
	// copied when the trade is written and are never re-joined with the live Tag.
	TagID    string `json:"tagId,omitempty"`
	TagName  string `json:"tagName,omitempty"`
	TagColor string `json:"tagColor,omitempty"`
	TagEmoji string `json:"tagEmoji,omitempty"`

	ImageRef  string    `json:"imageRef,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TagAppearance is how a tag looks on screen.
type TagAppearance struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
}

// Tagged reports whether the trade references a tag.
func (t Trade) Tagged() bool {
	return t.TagID != "" && t.TagID != NoTag
}

// RecordedTag returns the tag appearance snapshotted onto the trade when it was written.
func (t Trade) RecordedTag() TagAppearance {
	return TagAppearance{Name: t.TagName, Color: t.TagColor, Emoji: t.TagEmoji}
}

// ApplyTag snapshots tag onto the trade. A nil tag marks the trade untagged.
func (t *Trade) ApplyTag(tag *Tag) {
	if tag == nil {
		t.TagID, t.TagName, t.TagColor, t.TagEmoji = NoTag, "", "", ""
		return
	}
	t.TagID = tag.ID
	t.TagName = tag.Name
	t.TagColor = tag.Color
	t.TagEmoji = tag.Emoji
}

// Day parses Date as a time-zone naive calendar day.
func (t Trade) Day() (time.Time, error) {
	return time.Parse(DateLayout, t.Date)
}
