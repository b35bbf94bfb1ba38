package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as a borderless, left-aligned table.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(data.Rows())
	table.Render()

	return nil
}

// KeyValues renders label/value pairs as a two-column table.
type KeyValues [][2]string

func (kv KeyValues) Headers() []string {
	return []string{"Field", "Value"}
}

func (kv KeyValues) Rows() [][]string {
	rows := make([][]string, 0, len(kv))
	for _, pair := range kv {
		rows = append(rows, []string{pair[0], pair[1]})
	}

	return rows
}
