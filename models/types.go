package models

import "time"

// RankingEntry is one ranked track in a daily snapshot.
type RankingEntry struct {
	Ranking   int    `json:"ranking"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Image     string `json:"image"`
	YoutubeID string `json:"youtubeID"`
}

func (e RankingEntry) IsPlayable() bool {
	return e.YoutubeID != ""
}

// Selection is the (category, date) pair a page is currently showing.
type Selection struct {
	Category string `json:"category"`
	Date     string `json:"date"`
}

func (s Selection) IsComplete() bool {
	return s.Category != "" && s.Date != ""
}

const DateLayout = "2006-01-02"

// Yesterday returns the calendar day before now in loc as YYYY-MM-DD.
func Yesterday(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).AddDate(0, 0, -1).Format(DateLayout)
}
