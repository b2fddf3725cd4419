package extract

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
)

// CSV renders each row as its cells joined by " | ", one row per line.
// Ragged rows are allowed. Blank lines between rows are kept as empty rows.
func CSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", readError(path, "CSV", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []string
	lastLine := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", readError(path, "CSV", err)
		}

		// encoding/csv skips empty lines; restore them from line positions.
		line, _ := r.FieldPos(0)
		for ; lastLine > 0 && line-lastLine > 1; lastLine++ {
			rows = append(rows, "")
		}
		last := len(record) - 1
		endLine, _ := r.FieldPos(last)
		lastLine = endLine + strings.Count(record[last], "\n")

		rows = append(rows, strings.Join(record, " | "))
	}

	return strings.TrimSpace(strings.Join(rows, "\n")), nil
}
