package journal

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/veritasvoid/TradeZen/internal/models"
)

// TagStat is the performance of one tag.
type TagStat struct {
	TagID string `json:"tagId"`

	// Display fields come from the first trade of the group: the appearance the
	// tag had when that trade was recorded, not the tag's current definition.
	TagName  string `json:"tagName"`
	TagColor string `json:"tagColor"`
	TagEmoji string `json:"tagEmoji"`

	TotalPL decimal.Decimal `json:"totalPL"`
	Trades  int             `json:"trades"`
	Wins    int             `json:"wins"`
	Losses  int             `json:"losses"`
	WinRate int             `json:"winRate"`

	// Current is the live tag definition with this id, nil once the tag is deleted.
	Current *models.Tag `json:"current,omitempty"`
}

// TagPerformance groups tagged trades by tag id and returns the groups sorted
// by TotalPL, highest first. Groups with equal P&L keep the order in which
// their tag first appears in trades. Untagged trades are left out entirely.
func TagPerformance(trades []models.Trade, tags []models.Tag) []TagStat {
	live := make(map[string]models.Tag, len(tags))
	for _, tag := range tags {
		live[tag.ID] = tag
	}

	index := make(map[string]int)
	var stats []TagStat
	for _, t := range trades {
		if !t.Tagged() {
			continue
		}
		i, ok := index[t.TagID]
		if !ok {
			recorded := t.RecordedTag()
			stat := TagStat{
				TagID:    t.TagID,
				TagName:  recorded.Name,
				TagColor: recorded.Color,
				TagEmoji: recorded.Emoji,
				TotalPL:  decimal.Zero,
			}
			if tag, found := live[t.TagID]; found {
				stat.Current = &tag
			}
			i = len(stats)
			index[t.TagID] = i
			stats = append(stats, stat)
		}

		s := &stats[i]
		s.TotalPL = s.TotalPL.Add(t.Amount)
		s.Trades++
		if isWin(t) {
			s.Wins++
		}
		if isLoss(t) {
			s.Losses++
		}
	}

	for i := range stats {
		stats[i].WinRate = WinRate(stats[i].Wins, stats[i].Trades)
	}
	sort.SliceStable(stats, func(a, b int) bool {
		return stats[a].TotalPL.GreaterThan(stats[b].TotalPL)
	})
	return stats
}

// TradesForTag returns the trades recorded with tagID, in input order.
func TradesForTag(trades []models.Trade, tagID string) []models.Trade {
	var out []models.Trade
	for _, t := range trades {
		if t.Tagged() && t.TagID == tagID {
			out = append(out, t)
		}
	}
	return out
}

// SortTags orders tags by their display order, then by name.
func SortTags(tags []models.Tag) []models.Tag {
	out := append([]models.Tag(nil), tags...)
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Order != out[b].Order {
			return out[a].Order < out[b].Order
		}
		return out[a].Name < out[b].Name
	})
	return out
}
