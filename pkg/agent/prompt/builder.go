// Package prompt assembles the system prompt and initial user message for
// an analysis conversation from the user's question and table schemas.
package prompt

import (
	"strings"

	"github.com/tablemind/tablemind/pkg/models"
)

// Builder renders prompt text for the turn loop. Stateless: all state
// comes from parameters, and identical inputs yield byte-identical output
// so prompts can be cached and snapshot-tested. Thread-safe.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

const analysisTask = `Begin your analysis now. Inspect the data with the tools before answering
unless the catalog alone answers the question.`

// Build maps a question and its table schemas to the system prompt and the
// initial user message. Both embed the table catalog so each side of the
// conversation is self-contained.
func (b *Builder) Build(query string, tables []models.TableInfo) (system, user string) {
	catalog := FormatTableCatalog(tables)

	system = composeSystem(catalog, len(tables) > 1)
	user = b.buildUserMessage(query, catalog, len(tables) > 1)
	return system, user
}

// buildUserMessage builds the first user turn: task framing, catalog,
// question, and the analysis kick-off line.
func (b *Builder) buildUserMessage(query, catalog string, multiTable bool) string {
	var sb strings.Builder

	if multiTable {
		sb.WriteString("Answer the following question about the user's tables.\n\n")
	} else {
		sb.WriteString("Answer the following question about the user's table.\n\n")
	}

	sb.WriteString(catalog)
	sb.WriteString("\n")

	sb.WriteString("## Question\n\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString(analysisTask)

	return sb.String()
}
