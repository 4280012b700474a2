package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"leadscout-engine/internal/domain"
)

// ListExports returns the names of *.csv files under the inbox directory,
// oldest first so reruns drain the backlog in arrival order. A missing inbox
// is not an error; it just means nothing to do yet.
func ListExports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read inbox %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadExport reads and normalizes one export file. Rows with an empty
// assembled address are dropped.
func LoadExport(dir, name, marketState string) ([]domain.Listing, error) {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("read export %s: %w", name, err)
	}

	var listings []domain.Listing
	for _, rec := range ParseTable(string(b)) {
		if l, ok := Normalize(rec, marketState, name); ok {
			listings = append(listings, l)
		}
	}
	return listings, nil
}
