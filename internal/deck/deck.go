// internal/deck/deck.go

// Package deck loads the shared card catalog: an immutable list of card
// image file names that every room copies and shuffles privately.
package deck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load enumerates the card images under dir. Any .jpg/.jpeg/.png file is a
// card; its file name is the card identifier. An empty catalog is an error
// because no room can be constructed without cards.
func Load(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading card catalog %s: %w", dir, err)
	}

	var cards []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			cards = append(cards, entry.Name())
		}
	}

	if len(cards) == 0 {
		return nil, fmt.Errorf("card catalog %s contains no card images", dir)
	}
	return cards, nil
}
