// Package tools declares the static catalog of tools the model may invoke
// and classifies where each one executes.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/tablemind/tablemind/pkg/llm"
)

// Tool names.
const (
	RunQuery             = "run_query"
	GetColumnStats       = "get_column_stats"
	GetValueDistribution = "get_value_distribution"
	TransformData        = "transform_data"
	FinalAnswer          = "final_answer"
)

// Kind says where a tool executes.
type Kind string

const (
	// KindBrowser tools run against the client-side analytics engine:
	// the turn loop suspends and waits for the posted result.
	KindBrowser Kind = "browser"

	// KindTerminal tools conclude the analysis on the server: no tool_call
	// event is emitted.
	KindTerminal Kind = "terminal"
)

var kinds = map[string]Kind{
	RunQuery:             KindBrowser,
	GetColumnStats:       KindBrowser,
	GetValueDistribution: KindBrowser,
	TransformData:        KindBrowser,
	FinalAnswer:          KindTerminal,
}

// KindOf classifies a tool name. The bool is false for unknown tools.
func KindOf(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// IsTerminal reports whether the named tool concludes the analysis.
func IsTerminal(name string) bool {
	return kinds[name] == KindTerminal
}

// catalog lists every tool advertised to the model. Each input schema
// requires a thought string so the reasoning trace always captures why a
// tool was invoked.
var catalog = []llm.ToolDefinition{
	{
		Name:        RunQuery,
		Description: "Execute a SQL query against the user's tables and return the resulting rows. Use this for aggregations, filters, joins, and row lookups.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"thought": {"type": "string", "description": "Why this query is the right next step."},
				"sql": {"type": "string", "description": "The SQL query to run. Reference tables and columns exactly as listed in the schema."}
			},
			"required": ["thought", "sql"]
		}`),
	},
	{
		Name:        GetColumnStats,
		Description: "Return summary statistics for one column: count, nulls, distinct values, and for numeric columns min/max/mean. Use this before writing aggregations over unfamiliar columns.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"thought": {"type": "string", "description": "Why these statistics are needed."},
				"table_name": {"type": "string", "description": "The table to inspect."},
				"column": {"type": "string", "description": "The column to summarise."}
			},
			"required": ["thought", "table_name", "column"]
		}`),
	},
	{
		Name:        GetValueDistribution,
		Description: "Return the most frequent values of a column with their counts. Use this to discover categories before grouping or filtering on them.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"thought": {"type": "string", "description": "Why the distribution matters for the question."},
				"table_name": {"type": "string", "description": "The table to inspect."},
				"column": {"type": "string", "description": "The column to count values of."},
				"limit": {"type": "integer", "description": "Maximum number of distinct values to return. Defaults to 20."}
			},
			"required": ["thought", "table_name", "column"]
		}`),
	},
	{
		Name:        TransformData,
		Description: "Materialise the result of a SQL query as a new table for later steps. Use this when an intermediate result will be queried again.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"thought": {"type": "string", "description": "Why the transformation is needed."},
				"sql": {"type": "string", "description": "The SQL query producing the derived rows."},
				"target_table": {"type": "string", "description": "Name for the new table."}
			},
			"required": ["thought", "sql", "target_table"]
		}`),
	},
	{
		Name:        FinalAnswer,
		Description: "Deliver the final answer to the user's question, optionally with a chart recommendation. Call this exactly once, when the analysis is complete.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"thought": {"type": "string", "description": "Summary of the reasoning that led to the answer."},
				"answer": {"type": "string", "description": "The answer in plain language."},
				"chartType": {"type": "string", "enum": ["table", "bar", "line", "pie", "scatter"], "description": "How to visualise the supporting data."},
				"xAxis": {"type": "string", "description": "Column for the x axis, when charting."},
				"yAxis": {"type": "string", "description": "Column for the y axis, when charting."}
			},
			"required": ["thought", "answer"]
		}`),
	},
}

// Catalog returns the tool definitions advertised on every LLM call.
// Callers get a copy; the catalog itself is immutable.
func Catalog() []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(catalog))
	copy(out, catalog)
	return out
}

// FinalAnswerInput is the parsed payload of a final_answer invocation.
type FinalAnswerInput struct {
	Thought   string `json:"thought"`
	Answer    string `json:"answer"`
	ChartType string `json:"chartType"`
	XAxis     string `json:"xAxis"`
	YAxis     string `json:"yAxis"`
}

// ParseFinalAnswer decodes and validates a final_answer tool input.
func ParseFinalAnswer(raw json.RawMessage) (*FinalAnswerInput, error) {
	var input FinalAnswerInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("invalid final_answer input: %w", err)
	}
	if input.Answer == "" {
		return nil, fmt.Errorf("final_answer input is missing the answer")
	}
	return &input, nil
}

// ExtractThought pulls the thought string out of any tool input. Returns
// empty when the input has none.
func ExtractThought(raw json.RawMessage) string {
	var probe struct {
		Thought string `json:"thought"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.Thought
}
