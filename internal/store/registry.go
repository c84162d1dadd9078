package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var registryColumns = []string{"city", "country", "museum", "url"}

// ReadSites parses a registry CSV with a header row naming at least the
// city, country, museum and url columns, in any order. Blank rows are
// skipped.
func ReadSites(r io.Reader) ([]SiteInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("registry csv is empty")
		}
		return nil, fmt.Errorf("read registry header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range registryColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("registry csv missing %q column", col)
		}
	}

	var out []SiteInput
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read registry line %d: %w", line, err)
		}
		field := func(col string) string {
			i := index[col]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		in := SiteInput{
			Name:    field("museum"),
			City:    field("city"),
			Country: field("country"),
			URL:     field("url"),
		}
		if in == (SiteInput{}) {
			continue
		}
		if in.Name == "" || in.URL == "" {
			return nil, fmt.Errorf("registry line %d: museum and url are required", line)
		}
		out = append(out, in)
	}
	return out, nil
}
