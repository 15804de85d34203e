package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"hanna-engine/internal/models"
)

const taskSheet = "Tasks"

var TaskExportHeader = []string{
	"Task ID",
	"Patient ID",
	"Type",
	"Priority",
	"Reason",
	"Status",
	"Created At",
	"Completed At",
	"Completed By",
}

var taskColumnWidths = []float64{38, 20, 18, 10, 60, 12, 20, 20, 18}

// GenerateTaskExport renders tasks as an xlsx workbook, header row first.
func GenerateTaskExport(tasks []*models.Task) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(taskSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range TaskExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(taskSheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(taskSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(taskSheet, name, name, taskColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, t := range tasks {
		row := []interface{}{
			t.TaskID,
			t.PatientID,
			t.Type,
			string(t.Priority),
			t.Reason,
			string(t.Status),
			t.CreatedAt.UTC().Format(time.RFC3339),
			"",
			"",
		}
		if t.CompletedAt != nil {
			row[7] = t.CompletedAt.UTC().Format(time.RFC3339)
		}
		if t.CompletedBy != nil {
			row[8] = *t.CompletedBy
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(taskSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
