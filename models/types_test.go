package models

import (
	"testing"
	"time"
)

func TestYesterday(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)

	tests := []struct {
		name string
		now  time.Time
		loc  *time.Location
		want string
	}{
		{
			name: "mid month utc",
			now:  time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "2025-03-14",
		},
		{
			name: "new year",
			now:  time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "2024-12-31",
		},
		{
			name: "zone shifts the day",
			now:  time.Date(2025, 3, 15, 20, 0, 0, 0, time.UTC),
			loc:  seoul,
			want: "2025-03-15",
		},
		{
			name: "leap day",
			now:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "2024-02-29",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Yesterday(tt.now, tt.loc); got != tt.want {
				t.Errorf("Yesterday() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSelectionIsComplete(t *testing.T) {
	tests := []struct {
		sel  Selection
		want bool
	}{
		{Selection{Category: "global", Date: "2025-01-01"}, true},
		{Selection{Category: "", Date: "2025-01-01"}, false},
		{Selection{Category: "melon", Date: ""}, false},
		{Selection{}, false},
	}
	for _, tt := range tests {
		if got := tt.sel.IsComplete(); got != tt.want {
			t.Errorf("%+v.IsComplete() = %v, want %v", tt.sel, got, tt.want)
		}
	}
}
