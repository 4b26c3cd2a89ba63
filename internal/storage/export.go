package storage

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
)

// exportableTables is the whitelist of tables the admin may export. Table
// names are interpolated into SQL, so only names from this list are allowed.
var exportableTables = []string{
	"users", "payments", "subscriptions", "trainers", "schedule_slots", "bookings",
}

// ExportableTables returns the whitelist for display.
func ExportableTables() []string {
	out := make([]string, len(exportableTables))
	copy(out, exportableTables)
	return out
}

// Exportable reports whether the table may be exported.
func Exportable(table string) bool {
	for _, t := range exportableTables {
		if t == table {
			return true
		}
	}
	return false
}

// ExportCSV flattens a whitelisted table into CSV rows on w, column names
// as the header. NULLs become empty cells.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, table string) error {
	if !Exportable(table) {
		return fmt.Errorf("table %q is not exportable", table)
	}
	rows, err := s.handle().QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return storageErr("export "+table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return storageErr("export "+table, err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	values := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	record := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return storageErr("export "+table, err)
		}
		for i, v := range values {
			if v.Valid {
				record[i] = v.String
			} else {
				record[i] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("export "+table, err)
	}
	cw.Flush()
	return cw.Error()
}
