package report

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName      = "Sheet1"
	xlsxHeaderRow  = 3 // row 1: title, row 2: subtitle
	xlsxDayWidth   = 4
	xlsxNameWidth  = 28
	xlsxOtherWidth = 12
)

// RenderXLSX writes the table as a single-sheet workbook. Every cell is written as a string
// so values read back exactly as they are shown on screen.
func RenderXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetCellStr(sheetName, "A1", t.Title); err != nil {
		return errors.Wrap(err, "xlsx title")
	}
	if err := f.SetCellStr(sheetName, "A2", t.Subtitle); err != nil {
		return errors.Wrap(err, "xlsx subtitle")
	}

	if err := setRow(f, xlsxHeaderRow, t.Header()); err != nil {
		return errors.Wrap(err, "xlsx header")
	}
	for i, row := range t.Rows {
		if err := setRow(f, xlsxHeaderRow+1+i, row); err != nil {
			return errors.Wrapf(err, "xlsx row %d", i+1)
		}
	}

	if err := styleSheet(f, t); err != nil {
		return err
	}
	return f.Write(w)
}

func setRow(f *excelize.File, row int, cells []string) error {
	for c, val := range cells {
		if val == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(c+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(sheetName, cell, val); err != nil {
			return err
		}
	}
	return nil
}

func styleSheet(f *excelize.File, t Table) error {
	if len(t.Columns) == 0 {
		return nil
	}

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return errors.Wrap(err, "xlsx title style")
	}
	if err := f.SetCellStyle(sheetName, "A1", "A1", titleStyle); err != nil {
		return errors.Wrap(err, "xlsx title style")
	}

	hdrStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"28916C"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return errors.Wrap(err, "xlsx header style")
	}
	first, _ := excelize.CoordinatesToCellName(1, xlsxHeaderRow)
	last, _ := excelize.CoordinatesToCellName(len(t.Columns), xlsxHeaderRow)
	if err := f.SetCellStyle(sheetName, first, last, hdrStyle); err != nil {
		return errors.Wrap(err, "xlsx header style")
	}

	for i, col := range t.Columns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := float64(xlsxOtherWidth)
		switch {
		case col.Kind == ColumnDay:
			width = xlsxDayWidth
		case col.Align == AlignLeft:
			width = xlsxNameWidth
		}
		if err := f.SetColWidth(sheetName, name, name, width); err != nil {
			return errors.Wrap(err, "xlsx column width")
		}
	}

	// keep the header and the name columns in view while scrolling
	topLeft, _ := excelize.CoordinatesToCellName(3, xlsxHeaderRow+1)
	return errors.Wrap(f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      2,
		YSplit:      xlsxHeaderRow,
		TopLeftCell: topLeft,
		ActivePane:  "bottomRight",
	}), "xlsx panes")
}
