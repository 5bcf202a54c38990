package internal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ColumnInfo describes one column of a SQLite table
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableInfo describes one SQLite table with a few sample rows
type TableInfo struct {
	Name    string              `json:"name"`
	Rows    int                 `json:"rows"`
	Columns []ColumnInfo        `json:"columns"`
	Sample  []map[string]string `json:"sample,omitempty"`
}

// InspectSQLite reports every user table of a SQLite database. Values in the
// sample rows are cut to maxValue runes and to their first line.
func InspectSQLite(ctx context.Context, db *sql.DB, sampleRows, maxValue int) ([]TableInfo, error) {
	tables, err := sqliteTables(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	infos := make([]TableInfo, 0, len(tables))
	for _, name := range tables {
		info := TableInfo{Name: name}
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&info.Rows); err != nil {
			return nil, fmt.Errorf("failed to count rows of %s: %w", name, err)
		}
		if info.Columns, err = tableSchema(ctx, db, name); err != nil {
			return nil, fmt.Errorf("failed to get schema of %s: %w", name, err)
		}
		if sampleRows > 0 && info.Rows > 0 {
			if info.Sample, err = sampleData(ctx, db, info, sampleRows, maxValue); err != nil {
				LogWarn("Error sampling %s: %v", name, err)
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func sqliteTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func tableSchema(ctx context.Context, db *sql.DB, table string) ([]ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []ColumnInfo
	for rows.Next() {
		var (
			col          ColumnInfo
			cid          int
			notNull, pk  int
			defaultValue sql.NullString
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}
		col.NotNull = notNull == 1
		col.PrimaryKey = pk > 0
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func sampleData(ctx context.Context, db *sql.DB, info TableInfo, limit, maxValue int) ([]map[string]string, error) {
	names := make([]string, len(info.Columns))
	for i, col := range info.Columns {
		names[i] = fmt.Sprintf("%q", col.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %q LIMIT %d", strings.Join(names, ", "), info.Name, limit)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sample []map[string]string
	for rows.Next() {
		values := make([]any, len(info.Columns))
		ptrs := make([]any, len(info.Columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return sample, err
		}

		row := make(map[string]string, len(info.Columns))
		for i, col := range info.Columns {
			row[col.Name] = formatValue(values[i], maxValue)
		}
		sample = append(sample, row)
	}
	return sample, rows.Err()
}

func formatValue(v any, maxValue int) string {
	if v == nil {
		return "<NULL>"
	}
	var s string
	switch b := v.(type) {
	case []byte:
		s = string(b)
	default:
		s = fmt.Sprintf("%v", v)
	}
	cut := false
	if first, _, ok := strings.Cut(s, "\n"); ok {
		s, cut = first, true
	}
	if r := []rune(s); maxValue > 0 && len(r) > maxValue {
		s, cut = string(r[:maxValue]), true
	}
	if cut {
		s += "..."
	}
	return s
}
