// Package output renders query results as text tables or JSON lines.
package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"

	"github.com/JayabrataBasu/veridicalql/pkg/sql"
)

// Format selects how results are written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// Printer writes results to w.
type Printer struct {
	w      io.Writer
	format Format
}

// New creates a Printer.
func New(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

// Format returns the printer's format.
func (p *Printer) Format() Format { return p.format }

// Result writes res. Tables end with a row count and timing footer; JSON
// output is one object per row with keys in column order.
func (p *Printer) Result(res *sql.Result) error {
	if p.format == FormatJSON {
		return p.jsonLines(res)
	}
	header := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c.Name
	}
	rows := make([][]string, 0, len(res.Rows))
	for _, vals := range res.Values() {
		cells := make([]string, len(vals))
		for i, v := range vals {
			cells[i] = v.String()
		}
		rows = append(rows, cells)
	}
	p.Table(header, rows)
	_, err := fmt.Fprintf(p.w, "(%d %s, %.3f ms)\n", len(res.Rows), plural(len(res.Rows), "row"), res.ElapsedMS())
	return err
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func (p *Printer) jsonLines(res *sql.Result) error {
	var buf bytes.Buffer
	for _, vals := range res.Values() {
		buf.Reset()
		buf.WriteByte('{')
		for i, v := range vals {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(res.Columns[i].Name)
			if err != nil {
				return err
			}
			val, err := json.Marshal(v.ToGo())
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteString("}\n")
		if _, err := p.w.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Table writes a plain table, used for results and catalog listings.
func (p *Printer) Table(header []string, rows [][]string) {
	table := tablewriter.NewWriter(p.w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
}
