package database

// UnknownRowCount marks a table whose catalog statistics are missing.
const UnknownRowCount int64 = -1

// ColumnInfo describes a single column in a table
type ColumnInfo struct {
	Name     string  `json:"name"`
	DataType string  `json:"dataType"`
	Nullable bool    `json:"nullable"`
	Priority float64 `json:"priority,omitempty"`
}

// TableInfo describes a table as introspected from the catalog. It is built
// once per scan; the priority scorer returns scored copies rather than
// mutating the inspector's slice.
type TableInfo struct {
	Schema        string       `json:"schema,omitempty"`
	Name          string       `json:"name"`
	Engine        Engine       `json:"engine"`
	EstimatedRows int64        `json:"estimatedRows"`
	Columns       []ColumnInfo `json:"columns"`
	Priority      float64      `json:"priority"`
}

// QualifiedName returns "schema.table", or just the table name when the
// schema is empty.
func (t TableInfo) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnNames returns the names of the table's columns in ordinal order.
func (t TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// RowsKnown reports whether the catalog produced a usable row estimate.
func (t TableInfo) RowsKnown() bool {
	return t.EstimatedRows >= 0
}

// Sample holds the rows read from one table. Values are normalised by
// CollectSample: text columns arrive as string regardless of driver.
type Sample struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of sampled rows.
func (s *Sample) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// CatalogColumn is one row of an engine's column catalog query.
type CatalogColumn struct {
	Schema string
	Table  string
	Column ColumnInfo
}

// AttachColumns distributes catalog columns onto their tables, preserving
// both table order and ordinal column order. Shared by every driver so the
// catalog queries stay two round trips regardless of table count.
func AttachColumns(tables []TableInfo, columns []CatalogColumn) []TableInfo {
	index := make(map[string]int, len(tables))
	for i, t := range tables {
		index[t.QualifiedName()] = i
	}
	for _, c := range columns {
		key := TableInfo{Schema: c.Schema, Name: c.Table}.QualifiedName()
		if i, ok := index[key]; ok {
			tables[i].Columns = append(tables[i].Columns, c.Column)
		}
	}
	return tables
}

// NormalizeEstimate converts a catalog row estimate into EstimatedRows.
// Catalogs report zero or negative values for tables that were never
// analysed, so those are treated as unknown rather than empty.
func NormalizeEstimate(n int64) int64 {
	if n <= 0 {
		return UnknownRowCount
	}
	return n
}
