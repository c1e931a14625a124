package crawler

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"campusqa/internal/domain"
)

// LoadSeeds reads seed URLs. For .xlsx files the URLs come from the column
// whose header equals column on the first sheet; any other file is read as
// one URL per line. Blank and duplicate entries are skipped.
func LoadSeeds(path, column string) ([]string, error) {
	var raw []string
	var err error
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		raw, err = seedsFromSheet(path, column)
	} else {
		raw, err = seedsFromLines(path)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(raw))
	seeds := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimSpace(u)
		if u == "" || strings.HasPrefix(u, "#") || seen[u] {
			continue
		}
		seen[u] = true
		seeds = append(seeds, u)
	}
	return seeds, nil
}

func seedsFromSheet(path, column string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open seeds workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook %s has no sheets", domain.ErrInvalidInput, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := -1
	for i, h := range rows[0] {
		if strings.TrimSpace(h) == column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: column %q not found in %s", domain.ErrConfiguration, column, path)
	}

	var urls []string
	for _, row := range rows[1:] {
		if col < len(row) {
			urls = append(urls, row[col])
		}
	}
	return urls, nil
}

func seedsFromLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		urls = append(urls, sc.Text())
	}
	return urls, sc.Err()
}
