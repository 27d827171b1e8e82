package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tablemind/tablemind/pkg/models"
)

// joinSections joins prompt sections with a blank line between them.
func joinSections(sections []string) string {
	return strings.Join(sections, "\n\n")
}

// FormatTableCatalog builds the table catalog section: one subsection per
// table with columns, row count, and sample rows. Output depends only on
// the input slice, in slice order.
func FormatTableCatalog(tables []models.TableInfo) string {
	var sb strings.Builder

	if len(tables) == 1 {
		sb.WriteString("## Available Table\n\n")
		sb.WriteString("One table is available.\n")
	} else {
		sb.WriteString("## Available Tables\n\n")
		fmt.Fprintf(&sb, "%d tables are available.\n", len(tables))
	}

	for _, tbl := range tables {
		sb.WriteString("\n### ")
		sb.WriteString(tbl.TableName)
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "**Row count:** %d\n", tbl.RowCount)
		sb.WriteString("**Columns:** ")
		sb.WriteString(strings.Join(tbl.Columns, ", "))
		sb.WriteString("\n")
		sb.WriteString(formatSampleRows(tbl))
	}

	return sb.String()
}

// formatSampleRows renders a table's sample rows as a markdown table with
// columns in declared order. Cell values are JSON-encoded so strings,
// numbers, and nulls stay unambiguous.
func formatSampleRows(tbl models.TableInfo) string {
	if len(tbl.SampleRows) == 0 {
		return "No sample rows provided.\n"
	}

	var sb strings.Builder
	sb.WriteString("\n**Sample rows:**\n\n")

	sb.WriteString("| ")
	sb.WriteString(strings.Join(tbl.Columns, " | "))
	sb.WriteString(" |\n|")
	sb.WriteString(strings.Repeat(" --- |", len(tbl.Columns)))
	sb.WriteString("\n")

	for _, row := range tbl.SampleRows {
		sb.WriteString("|")
		for _, col := range tbl.Columns {
			sb.WriteString(" ")
			sb.WriteString(formatCell(row[col]))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatCell JSON-encodes one sample value. encoding/json sorts map keys,
// so nested values render deterministically too. Pipes are escaped to keep
// the markdown table intact.
func formatCell(v any) string {
	if v == nil {
		return "null"
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		// Sample values come from parsed JSON, so this should not happen.
		return "null"
	}
	return strings.ReplaceAll(string(encoded), "|", "\\|")
}
