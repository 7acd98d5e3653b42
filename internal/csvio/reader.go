// Package csvio adapts CSV files to and from the row mappings used by the
// service: header-keyed parsing of uploads, rendering of exports, and the
// temporary files uploads are spooled into.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidCSV is returned when an upload cannot be parsed as CSV.
var ErrInvalidCSV = errors.New("invalid csv")

// Row maps header names to the values of one record.
type Row map[string]string

// ReadRows parses a whole CSV document into header-keyed rows, in file order.
//
// The first record is the header. Header names are trimmed of surrounding
// whitespace; when a name repeats, the rightmost column wins. Values beyond
// the header width are ignored and short records leave their trailing
// columns absent. An empty document yields no rows.
func ReadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(clean(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidCSV, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}

		row := make(Row, len(header))
		for i, name := range header {
			if i >= len(record) {
				break
			}
			row[name] = record[i]
		}
		rows = append(rows, row)
	}

	return rows, nil
}
