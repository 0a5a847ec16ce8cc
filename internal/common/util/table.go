package util

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// TableBuilder accumulates "label: value" rows and aligns the values in one column.
type TableBuilder struct {
	sb     strings.Builder
	writer *tabwriter.Writer
}

func NewTableBuilder() *TableBuilder {
	t := &TableBuilder{}
	t.writer = tabwriter.NewWriter(&t.sb, 1, 1, 1, ' ', 0)
	return t
}

// Row adds a line; value is formatted with %v.
func (t *TableBuilder) Row(label string, value interface{}) {
	// strings.Builder never fails
	_, _ = fmt.Fprintf(t.writer, "%s:\t%v\n", label, value)
}

func (t *TableBuilder) String() string {
	_ = t.writer.Flush()
	return t.sb.String()
}
