package query

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"time"

	"parity/internal/audit/chain"
	"parity/internal/audit/models"
	dErrors "parity/pkg/domain-errors"
)

// Format is an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts csv or json, case-insensitively. Empty means csv.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatCSV, nil
	}
	if !f.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unsupported export format %q", s)
	}
	return f, nil
}

func (f Format) IsValid() bool {
	return f == FormatCSV || f == FormatJSON
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// Export is a rendered audit export.
type Export struct {
	Format      Format
	ContentType string
	Filename    string
	Body        []byte
	Rows        int
	// Broken lists the sequences of exported entries that failed verification.
	Broken []int64
	Report chain.Report
}

// BrokenSequences renders Broken as a comma separated list.
func (e *Export) BrokenSequences() string {
	return joinSequences(e.Broken)
}

// csvHeader is the fixed CSV column order.
var csvHeader = []string{"Date", "User", "Role", "Action", "Entity Type", "Entity Name", "Hash"}

func render(format Format, entries []models.Entry) ([]byte, error) {
	switch format {
	case FormatJSON:
		return renderJSON(entries)
	default:
		return renderCSV(entries)
	}
}

func renderCSV(entries []models.Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		row := []string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Actor.Email,
			e.Actor.Role,
			string(e.Action),
			e.EntityType,
			e.EntityName,
			e.RecordHash,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderJSON(entries []models.Entry) ([]byte, error) {
	if entries == nil {
		entries = []models.Entry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}
