package page

import (
	"toptracks/catalog"
	"toptracks/models"
)

type Mode string

const (
	ModeLoading Mode = "loading"
	ModeError   Mode = "error"
	ModeEmpty   Mode = "empty"
	ModeList    Mode = "list"
)

const LoadingMessage = "로딩 중..."

type Row struct {
	Index     int    `json:"index"`
	Ranking   int    `json:"ranking"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Image     string `json:"image"`
	YoutubeID string `json:"youtubeID"`
	Playable  bool   `json:"playable"`
	Active    bool   `json:"active"`
}

type Chip struct {
	catalog.Category
	Selected bool `json:"selected"`
}

type View struct {
	Board    string `json:"board"`
	Title    string `json:"title"`
	Heading  string `json:"heading"`
	Category string `json:"category"`
	Date     string `json:"date"`
	Mode     Mode   `json:"mode"`
	Message  string `json:"message,omitempty"`
	Hint     string `json:"hint,omitempty"`
	Chips    []Chip `json:"chips"`
	Rows     []Row  `json:"rows"`
}

// Render maps a page state to exactly one display mode. It has no side effects.
func Render(board *catalog.Board, sel models.Selection, res Result, activeTrack string) View {
	v := View{
		Board:    board.ID,
		Title:    board.Title,
		Heading:  board.Heading(sel),
		Category: sel.Category,
		Date:     sel.Date,
		Chips:    make([]Chip, 0, len(board.Categories)),
		Rows:     []Row{},
	}
	for _, c := range board.Categories {
		v.Chips = append(v.Chips, Chip{Category: c, Selected: c.ID == sel.Category})
	}

	switch {
	case res.Loading:
		v.Mode = ModeLoading
		v.Message = LoadingMessage
	case res.Error != "":
		v.Mode = ModeError
		v.Message = res.Error
	case len(res.Entries) == 0:
		v.Mode = ModeEmpty
		v.Message = board.EmptyMessage
		v.Hint = board.EmptyHint
	default:
		v.Mode = ModeList
		v.Rows = make([]Row, 0, len(res.Entries))
		for i, e := range res.Entries {
			v.Rows = append(v.Rows, Row{
				Index:     i,
				Ranking:   e.Ranking,
				Title:     e.Title,
				Artist:    e.Artist,
				Image:     e.Image,
				YoutubeID: e.YoutubeID,
				Playable:  e.IsPlayable(),
				Active:    e.IsPlayable() && e.YoutubeID == activeTrack,
			})
		}
	}
	return v
}
