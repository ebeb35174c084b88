// Package recipient turns uploaded tabular recipient lists into
// normalized, de-duplicated recipient sequences.
package recipient

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mailrun/mailrun/internal/model"
)

// Load reads a CSV recipient list.
//
// Header names are trimmed and lower-cased; the first column whose name
// contains "email" is the address column, and the first other column whose
// name contains "name" is the full-name column. Both are required. Rows
// without an address are skipped and duplicate addresses keep their first
// occurrence.
func Load(r io.Reader) ([]model.Recipient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: recipient list is empty", model.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", model.ErrValidation, err)
	}

	emailCol, nameCol := detectColumns(header)
	if emailCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("%w: CSV must contain `email` and `full name` columns", model.ErrValidation)
	}

	var recipients []model.Recipient
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
		}
		recipients = append(recipients, model.Recipient{
			Email:    field(row, emailCol),
			FullName: field(row, nameCol),
		})
	}

	return Dedupe(recipients), nil
}

// Dedupe trims recipients, drops those without an address and keeps the
// first occurrence of each address. Names exported as "nan" by spreadsheet
// tools become empty.
func Dedupe(recipients []model.Recipient) []model.Recipient {
	out := make([]model.Recipient, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		address := strings.TrimSpace(r.Email)
		if address == "" {
			continue
		}
		if _, dup := seen[address]; dup {
			continue
		}
		seen[address] = struct{}{}
		out = append(out, model.Recipient{Email: address, FullName: cleanName(r.FullName)})
	}
	return out
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "nan") {
		return ""
	}
	return name
}

func detectColumns(header []string) (emailCol, nameCol int) {
	emailCol, nameCol = -1, -1
	for i, h := range header {
		col := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch {
		case strings.Contains(col, "email"):
			if emailCol < 0 {
				emailCol = i
			}
		case strings.Contains(col, "name"):
			if nameCol < 0 {
				nameCol = i
			}
		}
	}
	return emailCol, nameCol
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
