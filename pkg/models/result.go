package models

import "encoding/json"

// AnalysisResult is the payload of the answer event delivered to the
// client once the agent calls its terminal tool. Field names follow the
// client-facing JSON contract.
type AnalysisResult struct {
	Answer    string `json:"answer"`
	ChartType string `json:"chartType"`
	XAxis     string `json:"xAxis,omitempty"`
	YAxis     string `json:"yAxis,omitempty"`

	// ChartData holds the rows to visualise, taken from the most recent
	// successful tool execution. Always an array, never null.
	ChartData json.RawMessage `json:"chartData"`

	// Steps is the reasoning trace of browser-executed tool calls in
	// execution order. Always an array, never null.
	Steps []StepRecord `json:"steps"`
}

// StepRecord is one entry in the reasoning trace: a browser-executed tool
// call, its stated rationale, and its outcome.
type StepRecord struct {
	Step    int             `json:"step"`
	Tool    string          `json:"tool"`
	Thought string          `json:"thought"`
	Input   json.RawMessage `json:"input"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EmptyChartData is the canonical zero value for ChartData.
var EmptyChartData = json.RawMessage(`[]`)
