package dataset

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Kind is the inferred type of a column after load-time coercion.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindBoolean     Kind = "boolean"
	KindCategorical Kind = "categorical"
)

// Column holds one attribute for every record, indexed by record key.
// Numeric and boolean columns use Values (booleans as 0/1); categorical
// columns use Labels.
type Column struct {
	Name   string
	Kind   Kind
	Values []float64
	Labels []string

	distinct int
}

// IsNumeric reports whether the column is stored as numbers (booleans included).
func (c *Column) IsNumeric() bool { return c.Kind == KindNumeric || c.Kind == KindBoolean }

// Distinct returns the number of distinct values in the population.
func (c *Column) Distinct() int { return c.distinct }

// Value returns the value at key as a float64 or a string.
func (c *Column) Value(key int) any {
	if c.IsNumeric() {
		return c.Values[key]
	}
	return c.Labels[key]
}

func (c *Column) countDistinct() {
	if c.IsNumeric() {
		seen := make(map[float64]struct{}, 16)
		for _, v := range c.Values {
			seen[v] = struct{}{}
		}
		c.distinct = len(seen)
		return
	}
	seen := make(map[string]struct{}, 16)
	for _, v := range c.Labels {
		seen[v] = struct{}{}
	}
	c.distinct = len(seen)
}

// Dataset is the canonical, immutable client table. Record keys are dense:
// 0..Len()-1 in original row order after incomplete rows were dropped.
type Dataset struct {
	Name     string
	Path     string
	IDColumn string
	Columns  []*Column
	// Renamed maps original header labels to their sanitized names.
	Renamed map[string]string
	// Dropped counts rows removed for missing values.
	Dropped int

	externalIDs []string
	byName      map[string]int
	byExternal  map[string]int
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.externalIDs) }

// MinKey is always 0; it exists so callers can bound input widgets.
func (d *Dataset) MinKey() int { return 0 }

// MaxKey returns the largest valid key, or -1 for an empty dataset.
func (d *Dataset) MaxKey() int { return d.Len() - 1 }

// Column looks a column up by name.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.byName[name]
	if !ok {
		return nil, false
	}
	return d.Columns[i], true
}

// ColumnNames returns the schema in file order.
func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// SortedColumnNames returns the names of columns accepted by keep, sorted by name.
// A nil keep accepts every column.
func (d *Dataset) SortedColumnNames(keep func(*Column) bool) []string {
	var out []string
	for _, c := range d.Columns {
		if keep == nil || keep(c) {
			out = append(out, c.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Validate reports whether key addresses a record.
func (d *Dataset) Validate(key int) bool {
	return d != nil && key >= 0 && key < d.Len()
}

// CheckKey returns an *InvalidSelectionError when key does not address a record.
func (d *Dataset) CheckKey(key int) error {
	if d.Validate(key) {
		return nil
	}
	if d == nil || d.Len() == 0 {
		return &InvalidSelectionError{Key: key, Empty: true, Max: -1}
	}
	return &InvalidSelectionError{Key: key, Min: d.MinKey(), Max: d.MaxKey()}
}

// ExternalID returns the business identifier of the record at key.
func (d *Dataset) ExternalID(key int) string {
	if !d.Validate(key) {
		return ""
	}
	return d.externalIDs[key]
}

// KeyForExternalID resolves a business identifier to its record key.
func (d *Dataset) KeyForExternalID(id string) (int, bool) {
	k, ok := d.byExternal[id]
	return k, ok
}

// Record returns the FeatureRecord for key.
func (d *Dataset) Record(key int) (FeatureRecord, error) {
	if err := d.CheckKey(key); err != nil {
		return FeatureRecord{}, err
	}
	rec := FeatureRecord{Key: key, ExternalID: d.externalIDs[key], Fields: make([]Field, len(d.Columns))}
	for i, c := range d.Columns {
		rec.Fields[i] = Field{Name: c.Name, Value: c.Value(key)}
	}
	return rec, nil
}

// Field is one named attribute value.
type Field struct {
	Name  string
	Value any
}

// FeatureRecord is the attribute mapping of one client in schema order.
// It marshals to a JSON object, which is the scoring request body.
type FeatureRecord struct {
	Key        int
	ExternalID string
	Fields     []Field
}

// Get returns the value of the named attribute.
func (r FeatureRecord) Get(name string) (any, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Map returns the attributes as a plain map.
func (r FeatureRecord) Map() map[string]any {
	m := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON writes the attributes as an object, preserving schema order.
func (r FeatureRecord) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
