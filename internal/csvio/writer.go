package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Render serializes a header and its records as CSV text.
// With no records the result is empty: no header line is written.
func Render(header []string, records [][]string) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("record %d has %d fields, header has %d", i+1, len(rec), len(header))
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write csv record %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
