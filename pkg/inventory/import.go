package inventory

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/models"
)

var requiredColumns = []string{"domain", "server"}

// ImportCSV upserts one site per row of the CSV file at path.
//
// The header must include domain and server; container_name and site_path are
// optional. Rows that fail validation are counted and skipped.
func (s *Store) ImportCSV(path string) (imported, failed int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Annotatef(err, "opening %s", path)
	}
	defer f.Close()

	return s.importCSV(f)
}

func (s *Store) importCSV(r io.Reader) (imported, failed int, err error) {
	reader := csv.NewReader(skipBOM(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return 0, 0, errors.NotValidf("empty CSV")
	}
	if err != nil {
		return 0, 0, errors.Annotate(err, "reading CSV header")
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return 0, 0, errors.NotValidf("CSV missing required columns %v", missing)
	}

	field := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				slog.Warn("skipping malformed CSV row", "line", line, "error", err)
				failed++
				continue
			}
			return imported, failed, errors.Annotate(err, "reading CSV")
		}

		site := &models.Site{
			Domain:        field(row, "domain"),
			Server:        field(row, "server"),
			ContainerName: field(row, "container_name"),
			SitePath:      field(row, "site_path"),
		}
		if err := s.UpsertSite(site); err != nil {
			slog.Warn("failed to import site", "line", line, "domain", site.Domain, "error", err)
			failed++
			continue
		}
		imported++
	}

	s.RefreshCapacityStatuses()
	return imported, failed, nil
}

// ImportJSON upserts each entry of the "sites" array of the JSON document at path.
func (s *Store) ImportJSON(path string) (imported, failed int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, errors.Annotatef(err, "reading %s", path)
	}

	var doc struct {
		Sites []json.RawMessage `json:"sites"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, 0, errors.NewNotValid(err, "JSON import "+path)
	}

	for i, raw := range doc.Sites {
		var site models.Site
		if err := decodeRecord(raw, &site); err != nil {
			slog.Warn("failed to import site", "index", i, "error", err)
			failed++
			continue
		}
		if err := s.UpsertSite(&site); err != nil {
			slog.Warn("failed to import site", "index", i, "domain", site.Domain, "error", err)
			failed++
			continue
		}
		imported++
	}

	s.RefreshCapacityStatuses()
	return imported, failed, nil
}

// skipBOM drops a leading UTF-8 byte order mark, as written by spreadsheet
// "CSV UTF-8" exports.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}
