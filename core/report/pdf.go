package report

import (
	"fmt"
	"io"
	"math"
	"time"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
)

const (
	pdfMargin       = 10.0 // mm
	pdfFooterHeight = 10.0
	pdfTitleHeight  = 8.0
	pdfSubHeight    = 6.0
	pdfHeaderHeight = 7.0
	pdfRowHeight    = 6.0
	pdfCellPadding  = 1.5
	pdfMinDayWidth  = 4.0
)

// PDFOptions configures the PDF export. Zero values fall back to A4 / Arial.
// FontFile is a UTF-8 TrueType font registered under FontFamily. Without it the core
// fonts are used, and they only encode cp1252 text.
type PDFOptions struct {
	PageSize           string
	FontFamily         string
	FontFile           string
	DisableCompression bool
	GeneratedAt        time.Time
}

func (opts PDFOptions) withDefaults() PDFOptions {
	if opts.PageSize == "" {
		opts.PageSize = "A4"
	}
	if opts.FontFamily == "" {
		opts.FontFamily = "Arial"
	}
	return opts
}

// RenderPDF writes the table as a landscape PDF, repeating the title block and the header row
// on every page. Day columns share whatever width the other columns leave.
func RenderPDF(w io.Writer, t Table, opts PDFOptions) error {
	opts = opts.withDefaults()

	pdf := gofpdf.New("L", "mm", opts.PageSize, "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.SetCompression(!opts.DisableCompression)
	pdf.AliasNbPages("")
	if !opts.GeneratedAt.IsZero() {
		pdf.SetCreationDate(opts.GeneratedAt)
	}
	tr, err := pdfTranslator(pdf, t, opts)
	if err != nil {
		return err
	}
	pdf.SetTitle(tr(t.Title), opts.FontFile != "")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfFooterHeight)
		pdf.SetFont(opts.FontFamily, "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, AlignCenter, false, 0, "")
	})

	bodySize := 9.0
	if hasDayColumns(t) {
		bodySize = 7
	}

	pageW, pageH := pdf.GetPageSize()
	usable := pageW - 2*pdfMargin
	pdf.SetFont(opts.FontFamily, "B", bodySize) // widest variant
	widths := columnWidths(t, func(s string) float64 { return pdf.GetStringWidth(tr(s)) }, usable)

	body := pageH - 2*pdfMargin - pdfFooterHeight - pdfTitleHeight - pdfSubHeight - pdfHeaderHeight
	perPage := int(math.Floor(body / pdfRowHeight))
	if perPage < 1 {
		perPage = 1
	}

	for _, page := range Paginate(t, perPage) {
		pdf.AddPage()

		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont(opts.FontFamily, "B", 14)
		pdf.CellFormat(0, pdfTitleHeight, tr(t.Title), "", 1, AlignLeft, false, 0, "")
		pdf.SetFont(opts.FontFamily, "", 10)
		pdf.CellFormat(0, pdfSubHeight, tr(t.Subtitle), "", 1, AlignLeft, false, 0, "")

		pdf.SetFont(opts.FontFamily, "B", bodySize)
		pdf.SetFillColor(40, 145, 108)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetDrawColor(200, 200, 200)
		for i, col := range t.Columns {
			pdf.CellFormat(widths[i], pdfHeaderHeight, tr(col.Title), "1", 0, AlignCenter, true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont(opts.FontFamily, "", bodySize)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFillColor(240, 240, 240)
		for r, row := range page.Rows {
			fill := r%2 == 1
			for i, cell := range row {
				pdf.CellFormat(widths[i], pdfRowHeight, tr(cell), "1", 0, t.Columns[i].Align, fill, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	return pdf.Output(w)
}

// pdfTranslator returns the function encoding table text for the selected font. With the
// core fonts, text they cannot encode fails the export instead of being replaced.
func pdfTranslator(pdf *gofpdf.Fpdf, t Table, opts PDFOptions) (func(string) string, error) {
	if opts.FontFile != "" {
		for _, style := range []string{"", "B", "I"} {
			pdf.AddUTF8Font(opts.FontFamily, style, opts.FontFile)
		}
		if err := pdf.Error(); err != nil {
			return nil, errors.Wrapf(err, "loading pdf font %s", opts.FontFile)
		}
		return func(s string) string { return s }, nil
	}

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	texts := append([]string{t.Title, t.Subtitle}, t.Header()...)
	for _, row := range t.Rows {
		texts = append(texts, row...)
	}
	for _, s := range texts {
		if r, ok := firstUnencodable(tr, s); ok {
			return nil, core.NewValidationError(
				errors.Wrapf(ErrPDFEncoding, "%q in %q", r, s),
				core.FieldError{Field: "format", Error: fmt.Sprintf("%q cannot be written to pdf without a unicode font, use xlsx or txt", s)},
			)
		}
	}
	return tr, nil
}

// firstUnencodable returns the first rune of `s` the translator substitutes.
func firstUnencodable(tr func(string) string, s string) (rune, bool) {
	for _, r := range s {
		if r < utf8.RuneSelf || r == '.' {
			continue
		}
		if tr(string(r)) == "." {
			return r, true
		}
	}
	return 0, false
}

func hasDayColumns(t Table) bool {
	for _, col := range t.Columns {
		if col.Kind == ColumnDay {
			return true
		}
	}
	return false
}

// columnWidths sizes every non-day column to its widest cell, then splits the remaining width
// evenly across day columns. When nothing is left for the days (or there are no day columns),
// the other columns are scaled so the total always equals `usable`.
func columnWidths(t Table, measure func(string) float64, usable float64) []float64 {
	widths := make([]float64, len(t.Columns))
	var fixed float64
	days := 0
	for i, col := range t.Columns {
		if col.Kind == ColumnDay {
			days++
			continue
		}
		w := measure(col.Title)
		for _, row := range t.Rows {
			if i < len(row) {
				if cw := measure(row[i]); cw > w {
					w = cw
				}
			}
		}
		widths[i] = w + 2*pdfCellPadding
		fixed += widths[i]
	}

	if days == 0 {
		if fixed > 0 {
			scale := usable / fixed
			for i := range widths {
				widths[i] *= scale
			}
		}
		return widths
	}

	dayW := (usable - fixed) / float64(days)
	if dayW < pdfMinDayWidth {
		dayW = pdfMinDayWidth
		if fixed > 0 {
			scale := (usable - dayW*float64(days)) / fixed
			for i, col := range t.Columns {
				if col.Kind != ColumnDay {
					widths[i] *= scale
				}
			}
		}
	}
	for i, col := range t.Columns {
		if col.Kind == ColumnDay {
			widths[i] = dayW
		}
	}
	return widths
}
