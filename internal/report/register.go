package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"

	"github.com/xuri/excelize/v2"
)

// SheetName 就诊登记表工作表名
const SheetName = "Visit Register"

// VisitRegisterHeader 导出表头（不含患者姓名和电话）
var VisitRegisterHeader = []string{
	"Visit ID",
	"Date",
	"Examiner",
	"Symptoms",
	"RDT",
	"Assessment",
	"Treatment",
	"Danger Signs",
	"Referral Facility",
	"Referral Urgency",
	"Synced",
}

var columnWidths = []float64{38, 20, 15, 30, 10, 30, 30, 12, 25, 15, 8}

// VisitRegister 生成就诊登记 Excel 文件
// visits 为空时只生成表头
func VisitRegister(visits []models.Visit) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range VisitRegisterHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(SheetName, name, name, columnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, v := range visits {
		row := i + 2 // 第1行是表头
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			f.Close()
			return nil, err
		}
		values := registerRow(v)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func registerRow(v models.Visit) []any {
	var facility, urgency string
	if v.Referral != nil {
		facility = v.Referral.Facility
		urgency = string(v.Referral.Urgency)
	}
	synced := "No"
	if v.Synced {
		synced = "Yes"
	}
	rdt := string(v.RDTResult)
	if rdt == "" {
		rdt = "-"
	}

	return []any{
		v.ID,
		v.StartTime.Format("2006-01-02 15:04"),
		v.ExaminerID,
		strings.Join(v.PresentSymptomNames(), ", "),
		rdt,
		deref(v.Assessment),
		deref(v.Treatment),
		len(v.DangerSigns),
		facility,
		urgency,
		synced,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
