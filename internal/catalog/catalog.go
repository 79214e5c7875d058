// Package catalog holds the static lookup tables used to classify chart
// timeframes: the period→minutes table and the ordered category bands.
// Tables are loaded once and exposed as pure functions.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTables []byte

// Band is one category range over timeframe minutes (inclusive on both ends).
// Omitted bounds leave the band open on that side.
type Band struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	MinMinutes  int    `yaml:"min_minutes" default:"1"`
	MaxMinutes  int    `yaml:"max_minutes" default:"1000000"`
	SortOrder   int    `yaml:"sort_order"`
	ShortTerm   bool   `yaml:"short_term"`
}

// Contains reports whether minutes falls inside the band.
func (b Band) Contains(minutes int) bool {
	return minutes >= b.MinMinutes && minutes <= b.MaxMinutes
}

type tables struct {
	Periods    map[string]int `yaml:"periods"`
	Categories []Band         `yaml:"categories"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	periods map[string]int
	bands   []Band // sorted by SortOrder, then Name
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultTables)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded tables are invalid: %v", err))
	}
	return c
}

// Load reads a YAML file with the same layout as default.yaml. An empty path
// returns the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse builds a Catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var t tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if len(t.Periods) == 0 {
		return nil, fmt.Errorf("periods table is empty")
	}

	seen := make(map[string]struct{}, len(t.Categories))
	for i := range t.Categories {
		if err := defaults.Set(&t.Categories[i]); err != nil {
			return nil, fmt.Errorf("category defaults: %w", err)
		}
		b := t.Categories[i]
		if b.Name == "" {
			return nil, fmt.Errorf("category without name")
		}
		if _, dup := seen[b.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q", b.Name)
		}
		seen[b.Name] = struct{}{}
		if b.MinMinutes > b.MaxMinutes {
			return nil, fmt.Errorf("category %q: min_minutes %d > max_minutes %d", b.Name, b.MinMinutes, b.MaxMinutes)
		}
	}

	bands := make([]Band, len(t.Categories))
	copy(bands, t.Categories)
	sort.SliceStable(bands, func(i, j int) bool {
		if bands[i].SortOrder != bands[j].SortOrder {
			return bands[i].SortOrder < bands[j].SortOrder
		}
		return bands[i].Name < bands[j].Name
	})

	periods := make(map[string]int, len(t.Periods))
	for k, v := range t.Periods {
		periods[k] = v
	}

	return &Catalog{periods: periods, bands: bands}, nil
}

// MinutesFor returns the canonical duration of a chart period. Unknown
// periods map to 0.
func (c *Catalog) MinutesFor(period string) int {
	return c.periods[period]
}

// CategoryFor returns the band owning minutes, or nil when minutes is not
// positive or no band matches. Overlaps resolve to the lowest sort order.
func (c *Catalog) CategoryFor(minutes int) *Band {
	if minutes <= 0 {
		return nil
	}
	for i := range c.bands {
		if c.bands[i].Contains(minutes) {
			b := c.bands[i]
			return &b
		}
	}
	return nil
}

// IsShortTerm is the classification copied onto each signal timeframe row.
// Uncategorizable timeframes count as long-term.
func (c *Catalog) IsShortTerm(period string) bool {
	b := c.CategoryFor(c.MinutesFor(period))
	return b != nil && b.ShortTerm
}

// Bands returns a copy of the ordered category bands.
func (c *Catalog) Bands() []Band {
	out := make([]Band, len(c.bands))
	copy(out, c.bands)
	return out
}
