// Package export reads the social-media data-export file and turns it into
// the flat, deduplicated list of fetch tasks the scheduler consumes.
package export

import (
	"encoding/json"
	"fmt"
	"os"
)

// Export mirrors the nesting of the data-export JSON. Only the fields the
// extractor consumes are declared; absence of the expected nesting simply
// yields zero entries.
type Export struct {
	Video VideoSection `json:"Video"`
}

type VideoSection struct {
	Videos VideoArchive `json:"Videos"`
}

type VideoArchive struct {
	VideoList []Entry `json:"VideoList"`
}

// Entry is one raw record from the export. Link may hold several
// newline-separated URLs for multi-media posts.
type Entry struct {
	Link string `json:"Link"`
	Date string `json:"Date"`
}

// Load reads and parses the export file. A malformed file is fatal; the fetch
// phase never starts without a parsed export.
func Load(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export %s: %w", path, err)
	}
	var exp Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parse export %s: %w", path, err)
	}
	return &exp, nil
}
