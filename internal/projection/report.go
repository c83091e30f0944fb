package projection

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"housekeeping/internal/ledger"
	"housekeeping/internal/task"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type column struct {
	header string
	width  float64
}

var stockColumns = []column{
	{"SKU", 18},
	{"Name", 28},
	{"Kind", 12},
	{"Category", 16},
	{"Unit", 10},
	{"Quantity", 12},
	{"Par Level", 12},
	{"Low Stock", 12},
	{"Unit Cost", 12},
	{"Value", 14},
}

var taskColumns = []column{
	{"Task ID", 38},
	{"Type", 14},
	{"Status", 14},
	{"Priority", 10},
	{"Room ID", 38},
	{"Assignee", 16},
	{"Created", 20},
	{"Started", 20},
	{"Completed", 20},
	{"Inspection", 12},
	{"Failure Reason", 30},
}

// StockReport renders one row per item followed by a total value row.
func StockReport(items []ledger.Item) ([]byte, error) {
	rows := make([][]any, 0, len(items)+1)
	for _, it := range items {
		low := "No"
		if it.LowStock() {
			low = "Yes"
		}
		rows = append(rows, []any{
			it.SKU, it.Name, string(it.Kind), it.Category, it.Unit,
			it.Quantity, it.ParLevel, low,
			it.UnitCost.StringFixed(2), it.Value().StringFixed(2),
		})
	}
	val := ledger.Value(items, ledger.DefaultCurrencyScale)
	rows = append(rows, []any{"TOTAL", nil, nil, nil, nil, nil, nil, nil, nil, val.Total.StringFixed(2)})
	return writeSheet("Stock", stockColumns, rows)
}

// TaskReport renders tasks in queue order.
func TaskReport(tasks []task.Task) ([]byte, error) {
	sorted := make([]task.Task, len(tasks))
	copy(sorted, tasks)
	task.SortQueue(sorted)

	rows := make([][]any, 0, len(sorted))
	for _, t := range sorted {
		inspection := ""
		if t.InspectionPassed != nil {
			inspection = "Failed"
			if *t.InspectionPassed {
				inspection = "Passed"
			}
		}
		rows = append(rows, []any{
			t.ID, string(t.Type), string(t.Status), string(t.Priority), t.RoomID, t.Assignee,
			formatTime(&t.CreatedAt), formatTime(t.StartedAt), formatTime(t.CompletedAt),
			inspection, t.FailureReason,
		})
	}
	return writeSheet("Tasks", taskColumns, rows)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func writeSheet(sheet string, cols []column, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, c := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, c.header); err != nil {
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, name, name, c.width); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for r, row := range rows {
		for c, v := range row {
			if v == nil || v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
