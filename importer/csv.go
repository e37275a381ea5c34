// Package importer turns CSV files and command-line URLs into link creation
// requests.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/metcalfc/dubco/api"
)

// Columns understood in an import file. Only url is required.
const (
	ColumnURL         = "url"
	ColumnKey         = "key"
	ColumnDomain      = "domain"
	ColumnTag         = "tag"
	ColumnExternalID  = "externalid"
	ColumnExternalID2 = "external_id"
	ColumnComments    = "comments"
)

// ErrNoHeader is returned for an empty file.
var ErrNoHeader = errors.New("CSV file is empty or has no headers")

// HeaderError reports required columns missing from the header row.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	return "missing required column: " + strings.Join(e.Missing, ", ")
}

// Row is one data row. Line is its position in the file counting the header
// as 1, so the first data row is 2.
type Row struct {
	Line   int
	Fields map[string]string
	Errors []string
}

// Valid reports whether the row passed validation.
func (r Row) Valid() bool { return len(r.Errors) == 0 }

// Request builds the create request for a valid row.
func (r Row) Request() api.CreateLinkRequest {
	req := api.CreateLinkRequest{
		URL:        r.Fields[ColumnURL],
		Key:        r.Fields[ColumnKey],
		Domain:     r.Fields[ColumnDomain],
		ExternalID: r.Fields[ColumnExternalID],
		Comments:   r.Fields[ColumnComments],
	}
	if req.ExternalID == "" {
		req.ExternalID = r.Fields[ColumnExternalID2]
	}
	if tags := r.Fields[ColumnTag]; tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.TagNames = append(req.TagNames, t)
			}
		}
	}
	for _, name := range UTMParams {
		if v := r.Fields[name]; v != "" {
			req.SetUTM(name, v)
		}
	}
	return req
}

// Result holds every parsed row, valid or not, in file order.
type Result struct {
	Headers []string
	Rows    []Row
}

// Valid returns the rows that passed validation.
func (r *Result) Valid() []Row {
	var out []Row
	for _, row := range r.Rows {
		if row.Valid() {
			out = append(out, row)
		}
	}
	return out
}

// Invalid returns the rows that failed validation.
func (r *Result) Invalid() []Row {
	var out []Row
	for _, row := range r.Rows {
		if !row.Valid() {
			out = append(out, row)
		}
	}
	return out
}

// Requests returns the create requests for the valid rows together with the
// file line of each, so lines[i] is the line of requests[i].
func (r *Result) Requests() (requests []api.CreateLinkRequest, lines []int) {
	for _, row := range r.Valid() {
		requests = append(requests, row.Request())
		lines = append(lines, row.Line)
	}
	return requests, lines
}

// RemapRows rewrites batch failure positions (1-based request positions) to
// file lines. Failures without a position are left as they are.
func RemapRows(failed []api.ItemError, lines []int) []api.ItemError {
	out := make([]api.ItemError, len(failed))
	for i, f := range failed {
		if f.Row > 0 && f.Row <= len(lines) {
			f.Row = lines[f.Row-1]
		}
		out[i] = f
	}
	return out
}

// ParseFile opens and parses an import file.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads CSV with a header row. Header names are matched
// case-insensitively. Rows that fail validation are kept with their errors.
func Parse(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}
	if err := checkHeaders(headers); err != nil {
		return nil, err
	}

	res := &Result{Headers: headers}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		res.Rows = append(res.Rows, validateRow(headers, record, line))
	}
	return res, nil
}

func checkHeaders(headers []string) error {
	for _, h := range headers {
		if h == ColumnURL {
			return nil
		}
	}
	return &HeaderError{Missing: []string{ColumnURL}}
}

func validateRow(headers, record []string, line int) Row {
	row := Row{Line: line, Fields: make(map[string]string, len(headers))}
	for i, h := range headers {
		if i >= len(record) || h == "" {
			continue
		}
		if v := strings.TrimSpace(record[i]); v != "" {
			row.Fields[h] = v
		}
	}

	u := row.Fields[ColumnURL]
	switch {
	case u == "":
		row.Errors = append(row.Errors, "missing required field: url")
	case !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://"):
		row.Errors = append(row.Errors, fmt.Sprintf("invalid URL (must start with http:// or https://): %s", u))
	}
	return row
}
