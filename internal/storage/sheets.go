package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/gm-engine/pkg/actor"
)

// SheetLibrary serves character sheet specs from a data directory on
// disk. Sheets are authored as JSON files; the filename is the sheet id.
type SheetLibrary struct {
	dir string
}

func NewSheetLibrary(dir string) *SheetLibrary {
	return &SheetLibrary{dir: dir}
}

// ListSheets returns the ids of every sheet in the library.
func (l *SheetLibrary) ListSheets() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return ids, nil
}

// GetSheet loads and builds the sheet with the given id.
func (l *SheetLibrary) GetSheet(id string) (*actor.Sheet, error) {
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, fmt.Errorf("invalid sheet id %q", id)
	}
	sheet, err := actor.LoadSheet(filepath.Join(l.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to load sheet %q: %w", id, err)
	}
	return sheet, nil
}
