// Package report exports the per-recipient delivery report of a campaign.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mailrun/mailrun/internal/fsutil"
	"github.com/mailrun/mailrun/internal/model"
)

// ContentType is the MIME type of an encoded report.
const ContentType = "text/csv"

var header = []string{"email", "status"}

// FileName returns the report file name for a campaign,
// e.g. "report_Spring_Expo_2024-05-01_09-30-00.csv".
func FileName(name, campaignID string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		return "report_" + campaignID + ".csv"
	}
	return "report_" + clean + "_" + campaignID + ".csv"
}

// WriteCSV writes the report with one row per outcome in report order.
func WriteCSV(w io.Writer, report []model.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, o := range report {
		if err := cw.Write([]string{o.Email, o.Describe()}); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Encode returns the report as CSV bytes.
func Encode(report []model.Outcome) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes an encoded report into dir and returns its path.
func Save(dir, fileName string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, fileName)
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
