package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// TextOptions configures the screen rendering.
// PageRows repeats the header row every PageRows rows (0 = header once).
type TextOptions struct {
	PageRows int
}

// RenderText writes the table as aligned plain text.
func RenderText(w io.Writer, t Table, opts TextOptions) error {
	bw := bufio.NewWriter(w)
	if t.Title != "" {
		fmt.Fprintln(bw, t.Title)
	}
	if t.Subtitle != "" {
		fmt.Fprintln(bw, t.Subtitle)
	}
	if t.Title != "" || t.Subtitle != "" {
		fmt.Fprintln(bw)
	}

	// header rows stay in the same column block so every page shares the column widths
	tw := tabwriter.NewWriter(bw, 0, 0, 2, ' ', 0)
	hdr := strings.Join(t.Header(), "\t")
	for _, page := range Paginate(t, opts.PageRows) {
		fmt.Fprintln(tw, hdr)
		for _, row := range page.Rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return bw.Flush()
}
