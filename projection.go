package viewport

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TextProjectionOptions controls how text projection is computed.
type TextProjectionOptions struct {
	// BoxSeparator defines separators between box children.
	// Defaults: Row = "\t", Column = "\n".
	BoxSeparatorRow    string
	BoxSeparatorColumn string

	// FullScrollContent is not read by the projection: every scroll child
	// and every bound data row is always included, whatever its value.
	FullScrollContent bool

	// MaxWidth is not read by the projection: projected lines are never
	// wrapped.
	MaxWidth int

	// IndentSize is the number of spaces per nesting level.
	IndentSize int

	// Now fixes the clock used by relative_time cell formatting. The zero
	// value means wall clock; tests and equivalence oracles pin it so
	// repeated projections of the same tree are byte-identical.
	Now time.Time
}

// DefaultTextProjectionOptions returns the default options.
func DefaultTextProjectionOptions() TextProjectionOptions {
	return TextProjectionOptions{
		BoxSeparatorRow:    "\t",
		BoxSeparatorColumn: "\n",
		FullScrollContent:  true,
		MaxWidth:           0,
		IndentSize:         0,
	}
}

// TextProjection computes the text projection of an entire render tree: a
// deterministic tree-to-string reduction usable as a cross-implementation
// equivalence oracle and as the primary output of headless/testing mode.
func TextProjection(tree *RenderTree) string {
	return TextProjectionWithOptions(tree, DefaultTextProjectionOptions())
}

// TextProjectionWithOptions computes the text projection with custom options.
func TextProjectionWithOptions(tree *RenderTree, opts TextProjectionOptions) string {
	if tree.Root == nil {
		return ""
	}
	return projectNode(tree.Root, tree, opts, 0)
}

// projectNode computes the text projection for a single node.
func projectNode(node *RenderNode, tree *RenderTree, opts TextProjectionOptions, depth int) string {
	if node == nil {
		return ""
	}

	if node.Props.TextAlt != nil {
		return *node.Props.TextAlt
	}

	indent := ""
	if opts.IndentSize > 0 {
		indent = strings.Repeat(" ", depth*opts.IndentSize)
	}

	switch node.Type {
	case NodeText:
		content := ""
		if node.Props.Content != nil {
			content = *node.Props.Content
		}
		return indent + content

	case NodeBox:
		dir := node.Props.Direction
		if dir == "" {
			dir = "column"
		}
		sep := opts.BoxSeparatorColumn
		if dir == "row" {
			sep = opts.BoxSeparatorRow
		}

		childTexts := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			t := projectNode(child, tree, opts, depth+1)
			if len(t) > 0 {
				childTexts = append(childTexts, t)
			}
		}
		return strings.Join(childTexts, sep)

	case NodeScroll:
		childTexts := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			t := projectNode(child, tree, opts, depth+1)
			if len(t) > 0 {
				childTexts = append(childTexts, t)
			}
		}

		// A scroll node with a row_template slot projects its bound data
		// rows as a table, appended after its regular children.
		if node.Props.Template != nil {
			templateSlotID := *node.Props.Template
			if slotVal, ok := tree.Slots[templateSlotID]; ok {
				if rt, ok := slotVal.(RowTemplateSlot); ok {
					schemaSlotID := rt.Schema
					rows := tree.DataRows[schemaSlotID]
					schema := tree.Schemas[schemaSlotID]
					if rows != nil && schema != nil {
						dataText := projectDataRows(rows, schema, opts)
						if dataText != "" {
							childTexts = append(childTexts, dataText)
						}
					}
				}
			}
		}

		return strings.Join(childTexts, "\n")

	case NodeInput:
		if node.Props.Value != nil {
			return indent + *node.Props.Value
		}
		if node.Props.Placeholder != nil {
			return indent + *node.Props.Placeholder
		}
		return indent

	case NodeImage, NodeCanvas:
		if node.Props.AltText != nil {
			return indent + *node.Props.AltText
		}
		return indent + "[image]"

	case NodeSeparator:
		return indent + strings.Repeat("─", 16)

	default:
		return ""
	}
}

// projectDataRows formats data rows as a TSV-like table with a header row
// of column names.
func projectDataRows(rows [][]interface{}, schema []SchemaColumn, opts TextProjectionOptions) string {
	if len(rows) == 0 {
		return ""
	}

	var lines []string

	headers := make([]string, len(schema))
	for i, col := range schema {
		headers[i] = col.Name
	}
	lines = append(lines, strings.Join(headers, "\t"))

	for _, row := range rows {
		cells := make([]string, len(schema))
		for i, col := range schema {
			if i < len(row) {
				cells[i] = formatValue(row[i], col, opts.Now)
			} else {
				cells[i] = ""
			}
		}
		lines = append(lines, strings.Join(cells, "\t"))
	}

	return strings.Join(lines, "\n")
}

// formatValue formats a single data value for text projection, applying
// the column's format hint if it has one.
func formatValue(value interface{}, column SchemaColumn, now time.Time) string {
	if value == nil {
		return ""
	}

	switch column.Format {
	case FormatHumanBytes:
		if n, ok := toFloat(value); ok {
			return humanBytes(n)
		}
	case FormatRelativeTime:
		if n, ok := toFloat(value); ok {
			return relativeTime(n, now)
		}
	}

	return fmt.Sprintf("%v", value)
}

// humanBytes formats a byte count into a human-readable string.
func humanBytes(bytes float64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	i := 0
	b := bytes
	for b >= 1024 && i < len(units)-1 {
		b /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%.0f %s", b, units[i])
	}
	return fmt.Sprintf("%.1f %s", b, units[i])
}

// relativeTime formats a Unix timestamp as a relative time string against
// now, falling back to the wall clock when now is the zero time.
func relativeTime(timestamp float64, now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	diff := float64(now.Unix()) - timestamp
	if diff < 0 {
		diff = math.Abs(diff)
	}
	if diff < 60 {
		return "just now"
	}
	if diff < 3600 {
		return fmt.Sprintf("%dm ago", int(diff/60))
	}
	if diff < 86400 {
		return fmt.Sprintf("%dh ago", int(diff/3600))
	}
	return fmt.Sprintf("%dd ago", int(diff/86400))
}
