package dataset

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultIDColumn is the identifier column of the application tables.
const DefaultIDColumn = "SK_ID_CURR"

// Options controls how a source file is read.
type Options struct {
	// IDColumn is removed from the schema and kept as ExternalID.
	IDColumn string
	// Delimiter for CSV input; 0 picks ',' or '\t' from the extension.
	Delimiter rune
	// Sheet selects an XLSX sheet; empty means the first one.
	Sheet string
}

// DefaultOptions returns the options used by the dashboard data files.
func DefaultOptions() Options {
	return Options{IDColumn: DefaultIDColumn}
}

// renames are label fixes carried over from the training pipeline; downstream
// consumers (the scoring service included) expect exactly these names.
var renames = map[string]string{
	"NAME_EDUCATION_TYPE_Secondary / secondary special": "NAME_EDUCATION_TYPE_Secondary_special",
	"NAME_FAMILY_STATUS_Single / not married":           "NAME_FAMILY_STATUS_Single_not_married",
	"NAME_HOUSING_TYPE_House / apartment":               "NAME_HOUSING_TYPE_House_apartment",
	"OCCUPATION_TYPE_Waiters/barmen staff":              "OCCUPATION_TYPE_Waiters_barmen_staff",
	"WALLSMATERIAL_MODE_Stone, brick":                   "WALLSMATERIAL_MODE_Stone_brick",
}

var unsafeRun = regexp.MustCompile(`[ /,]+`)

// SanitizeLabel maps a header label to its identifier-safe form.
func SanitizeLabel(label string) string {
	if to, ok := renames[label]; ok {
		return to
	}
	return unsafeRun.ReplaceAllString(label, "_")
}

var missingMarkers = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"NULL": {}, "null": {}, "None": {}, "<NA>": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {},
	"-1.#IND": {}, "-1.#QNAN": {}, "1.#IND": {}, "1.#QNAN": {},
}

func isMissing(s string) bool {
	_, ok := missingMarkers[strings.TrimSpace(s)]
	return ok
}

// Load reads path and returns the cleaned Dataset.
func Load(path string, opt Options) (*Dataset, error) {
	if opt.IDColumn == "" {
		opt.IDColumn = DefaultIDColumn
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Path: path, Reason: "unreadable file", Err: err}
	}
	header, rows, err := sourceFor(path).Read(path, opt)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "unreadable file", Err: err}
	}
	if len(header) == 0 {
		return nil, &LoadError{Path: path, Reason: "file is empty"}
	}

	idIdx := -1
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == opt.IDColumn {
			idIdx = i
		}
	}
	if idIdx < 0 {
		return nil, &LoadError{Path: path, Reason: fmt.Sprintf("identifier column %q not found", opt.IDColumn)}
	}

	ds := &Dataset{
		Name:       filepath.Base(path),
		Path:       path,
		IDColumn:   opt.IDColumn,
		Renamed:    map[string]string{},
		byName:     map[string]int{},
		byExternal: map[string]int{},
	}

	// Schema: every non-identifier column, renamed.
	var srcIdx []int
	seen := map[string]struct{}{opt.IDColumn: {}}
	for i, h := range header {
		if i == idIdx {
			continue
		}
		if _, dup := seen[h]; dup {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("duplicate column %q", h)}
		}
		seen[h] = struct{}{}
		srcIdx = append(srcIdx, i)
	}
	names := make([]string, len(srcIdx))
	for j, i := range srcIdx {
		names[j] = SanitizeLabel(header[i])
		if names[j] != header[i] {
			ds.Renamed[header[i]] = names[j]
		}
	}
	for j, n := range names {
		if prev, ok := ds.byName[n]; ok {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("renamed column %q collides with %q", header[srcIdx[j]], header[srcIdx[prev]])}
		}
		ds.byName[n] = j
	}

	// Keep complete rows only.
	cells := make([][]string, len(srcIdx))
	for r, row := range rows {
		if len(row) > len(header) {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("row %d has %d fields, header has %d", r+2, len(row), len(header))}
		}
		if len(row) < len(header) || isMissing(row[idIdx]) || hasMissing(row, srcIdx) {
			ds.Dropped++
			continue
		}
		ext := strings.TrimSpace(row[idIdx])
		if _, dup := ds.byExternal[ext]; !dup {
			ds.byExternal[ext] = len(ds.externalIDs)
		}
		ds.externalIDs = append(ds.externalIDs, ext)
		for j, i := range srcIdx {
			cells[j] = append(cells[j], strings.TrimSpace(row[i]))
		}
	}

	ds.Columns = make([]*Column, len(srcIdx))
	for j := range srcIdx {
		ds.Columns[j] = buildColumn(names[j], cells[j])
	}

	zap.L().Debug("dataset loaded",
		zap.String("path", path),
		zap.Int("rows", ds.Len()),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("dropped", ds.Dropped),
		zap.Int("renamed", len(ds.Renamed)),
	)
	return ds, nil
}

func hasMissing(row []string, idx []int) bool {
	for _, i := range idx {
		if isMissing(row[i]) {
			return true
		}
	}
	return false
}

// buildColumn infers the column kind from every kept value and coerces it.
func buildColumn(name string, vals []string) *Column {
	c := &Column{Name: name}
	switch {
	case allBoolean(vals):
		c.Kind = KindBoolean
		c.Values = make([]float64, len(vals))
		for i, v := range vals {
			if strings.EqualFold(v, "true") {
				c.Values[i] = 1
			}
		}
	case allNumeric(vals):
		c.Kind = KindNumeric
		c.Values = make([]float64, len(vals))
		for i, v := range vals {
			c.Values[i], _ = parseNumber(v)
		}
	default:
		c.Kind = KindCategorical
		c.Labels = append([]string(nil), vals...)
	}
	c.countDistinct()
	return c
}

func allBoolean(vals []string) bool {
	if len(vals) == 0 {
		return false
	}
	for _, v := range vals {
		if !strings.EqualFold(v, "true") && !strings.EqualFold(v, "false") {
			return false
		}
	}
	return true
}

func allNumeric(vals []string) bool {
	for _, v := range vals {
		if _, ok := parseNumber(v); !ok {
			return false
		}
	}
	return true
}

// parseNumber accepts finite decimal numbers only.
func parseNumber(s string) (float64, bool) {
	x, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(x, 0) || math.IsNaN(x) {
		return 0, false
	}
	return x, true
}
