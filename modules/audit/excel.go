package audit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"
)

// Tables included in the admin export.
var exportTables = []string{
	"audit_log",
	"members",
	"resources",
	"bookings",
	"series",
}

// exportWorkbook dumps the export tables into one sheet per table.
func (m *Module) exportWorkbook(ctx context.Context) (*excelize.File, error) {
	f := excelize.NewFile()

	for i, table := range exportTables {
		if i == 0 {
			f.SetSheetName("Sheet1", table)
		} else {
			if _, err := f.NewSheet(table); err != nil {
				return nil, fmt.Errorf("creating sheet %s: %w", table, err)
			}
		}
		if err := m.exportTable(ctx, f, table); err != nil {
			return nil, fmt.Errorf("exporting %s: %w", table, err)
		}
	}

	return f, nil
}

func (m *Module) exportTable(ctx context.Context, f *excelize.File, table string) error {
	// table comes from the static exportTables list, never from user input
	rows, err := m.db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := writeRow(f, table, 1, header); err != nil {
		return err
	}

	n := 2
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		if err := writeRow(f, table, n, vals); err != nil {
			return err
		}
		n++
	}
	return rows.Err()
}

func writeRow(f *excelize.File, sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &vals)
}

type xlsxResponse struct {
	file *excelize.File
}

func (x xlsxResponse) Write(w http.ResponseWriter) {
	x.file.Write(w)
}
