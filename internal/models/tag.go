package models

// Tag is a user-defined strategy label. Ids are generated client-side.
type Tag struct {
	ID    string `json:"tagId"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
	Order int    `json:"order"`
}

// Appearance returns the tag's current display fields.
func (t Tag) Appearance() TagAppearance {
	return TagAppearance{Name: t.Name, Color: t.Color, Emoji: t.Emoji}
}
