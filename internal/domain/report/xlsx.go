package report

import (
	"fmt"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dataSheet       = "Report"
	summarySheet    = "Summary"
)

// Workbook is the input for RenderXLSX.
type Workbook struct {
	Name        string
	Definition  *Definition
	Data        *Dataset
	From, To    time.Time
	GeneratedAt time.Time
}

// RenderXLSX writes the dataset to a "Report" sheet with a header row and
// adds a "Summary" sheet describing the run.
func RenderXLSX(wb Workbook) ([]byte, error) {
	file := excelize.NewFile()
	file.SetSheetName("Sheet1", dataSheet)

	header, err := file.NewStyle(`{"font":{"bold":true},"fill":{"type":"pattern","color":["#E6ECF5"],"pattern":1}}`)
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	cols := wb.Definition.Columns
	for i, name := range cols {
		file.SetCellValue(dataSheet, cell(i, 1), name)
	}
	if len(cols) > 0 {
		file.SetCellStyle(dataSheet, cell(0, 1), cell(len(cols)-1, 1), header)
		file.SetColWidth(dataSheet, column(0), column(len(cols)-1), 20)
	}
	for r, row := range wb.Data.Rows {
		for i, v := range row {
			if i >= len(cols) {
				break
			}
			file.SetCellValue(dataSheet, cell(i, r+2), cellValue(v))
		}
	}

	file.NewSheet(summarySheet)
	summary := [][2]string{
		{"Report", wb.Name},
		{"Type", wb.Definition.Title},
		{"Period start", wb.From.UTC().Format(time.RFC3339)},
		{"Period end", wb.To.UTC().Format(time.RFC3339)},
		{"Generated", wb.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Rows", fmt.Sprintf("%d", len(wb.Data.Rows))},
	}
	for i, kv := range summary {
		file.SetCellValue(summarySheet, cell(0, i+1), kv[0])
		file.SetCellValue(summarySheet, cell(1, i+1), kv[1])
	}
	file.SetCellStyle(summarySheet, "A1", cell(0, len(summary)), header)
	file.SetColWidth(summarySheet, "A", "B", 28)
	file.SetActiveSheet(1)

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// column converts a zero-based index to a spreadsheet column name.
func column(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

func cell(col, row int) string {
	return fmt.Sprintf("%s%d", column(col), row)
}

func cellValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04")
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	default:
		return v
	}
}
