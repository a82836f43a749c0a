// Package catalog holds the fixed category sets each ranking board offers,
// along with the board's display copy. The data ships embedded as YAML.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"

	"toptracks/models"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var categoriesYAML []byte

var ErrUnknownBoard = errors.New("unknown board")

const (
	AppleBoard = "apple"
	KoreaBoard = "korea"
)

// Category is one selectable chip on a board. ID doubles as the path segment
// of the snapshot URL.
type Category struct {
	ID        string `yaml:"id" json:"id"`
	Label     string `yaml:"label" json:"label"`
	LocalName string `yaml:"localName" json:"localName"`
	Icon      string `yaml:"icon" json:"icon"`
}

type Board struct {
	ID                 string     `yaml:"id"`
	Title              string     `yaml:"title"`
	HeadingFormat      string     `yaml:"headingFormat"`
	DefaultCategory    string     `yaml:"defaultCategory"`
	PreferenceKey      string     `yaml:"preferenceKey"`
	FailureMessage     string     `yaml:"failureMessage"`
	ExposeFailureCause bool       `yaml:"exposeFailureCause"`
	FailurePrefix      string     `yaml:"failurePrefix"`
	EmptyMessage       string     `yaml:"emptyMessage"`
	EmptyHint          string     `yaml:"emptyHint"`
	Categories         []Category `yaml:"categories"`
}

type file struct {
	Boards []*Board `yaml:"boards"`
}

var boards []*Board

func init() {
	parsed, err := Parse(categoriesYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	boards = parsed
}

// Parse decodes a board catalog and checks that every board's default
// category is part of its own set.
func Parse(data []byte) ([]*Board, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(f.Boards) == 0 {
		return nil, errors.New("catalog has no boards")
	}
	seen := make(map[string]bool, len(f.Boards))
	for _, b := range f.Boards {
		if b.ID == "" {
			return nil, errors.New("board without id")
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("duplicate board %q", b.ID)
		}
		seen[b.ID] = true
		if !b.Contains(b.DefaultCategory) {
			return nil, fmt.Errorf("board %q: default category %q is not in its set", b.ID, b.DefaultCategory)
		}
	}
	return f.Boards, nil
}

func Boards() []*Board {
	return boards
}

func Lookup(id string) (*Board, error) {
	for _, b := range boards {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBoard, id)
}

func Apple() *Board {
	b, _ := Lookup(AppleBoard)
	return b
}

func Korea() *Board {
	b, _ := Lookup(KoreaBoard)
	return b
}

func (b *Board) Category(id string) (Category, bool) {
	for _, c := range b.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

func (b *Board) Contains(id string) bool {
	_, ok := b.Category(id)
	return ok
}

func (b *Board) Persists() bool {
	return b.PreferenceKey != ""
}

// Heading is the list title shown above the ranking.
func (b *Board) Heading(sel models.Selection) string {
	c, ok := b.Category(sel.Category)
	switch b.HeadingFormat {
	case "dated":
		if !ok {
			return "TOP 100"
		}
		return fmt.Sprintf("%s . %s . TOP 100", c.ID, sel.Date)
	default:
		if !ok {
			return "Top 100"
		}
		return fmt.Sprintf("%s 음악 Top 100 : ", c.LocalName)
	}
}
