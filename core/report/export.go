package report

import (
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
)

type Format string

const (
	FormatText Format = "txt"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

var Formats = []Format{FormatText, FormatPDF, FormatXLSX}

var (
	ErrUnknownFormat = errors.New("unknown export format")
	ErrPDFEncoding   = errors.New("text not encodable with the pdf core fonts")
)

// ParseFormat accepts txt, pdf and xlsx (case-insensitive); "" defaults to pdf.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return FormatPDF, nil
	case FormatText, FormatPDF, FormatXLSX:
		return f, nil
	default:
		return "", core.NewValidationError(
			errors.Wrapf(ErrUnknownFormat, "%q", s),
			core.FieldError{Field: "format", Error: "must be one of txt, pdf, xlsx"},
		)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Filename returns the table's filename with the format extension.
func (f Format) Filename(t Table) string {
	return t.Filename + "." + string(f)
}

type ExportOptions struct {
	Text TextOptions
	PDF  PDFOptions
}

// Export renders `t` in format `f`.
func Export(w io.Writer, t Table, f Format, opts ExportOptions) error {
	switch f {
	case FormatText:
		return RenderText(w, t, opts.Text)
	case FormatPDF:
		return errors.Wrap(RenderPDF(w, t, opts.PDF), "rendering pdf")
	case FormatXLSX:
		return RenderXLSX(w, t)
	default:
		return errors.Wrapf(ErrUnknownFormat, "%q", f)
	}
}
