package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession() *Session {
	return &Session{
		ID:           "sess-abc123",
		UserID:       "user-42",
		CreatedAt:    time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		LastActivity: time.Date(2026, 1, 15, 10, 31, 5, 0, time.UTC),
		ModelTier:    "high",
		UseThinking:  true,
		Query:        "Which region had the highest revenue?",
		Schema: []TableInfo{
			{
				TableName:  "sales",
				Columns:    []string{"region", "revenue"},
				SampleRows: []map[string]any{{"region": "EMEA", "revenue": float64(1200)}},
				RowCount:   5000,
			},
		},
		Messages: []Message{
			NewUserMessage(NewTextBlock("Which region had the highest revenue?")),
			NewAssistantMessage(
				NewThinkingBlock("Need to aggregate revenue by region first.", "sig-1"),
				NewToolUseBlock("toolu_01", "run_query", json.RawMessage(`{"thought":"aggregate by region","sql":"SELECT region, SUM(revenue) FROM sales GROUP BY region"}`)),
			),
			NewUserMessage(NewToolResultBlock("toolu_01", `[{"region":"EMEA","sum":1200}]`, false)),
		},
		QueryResults: map[string]json.RawMessage{
			"step_0": json.RawMessage(`[{"region":"EMEA","sum":1200}]`),
		},
		StepIndex:          1,
		Iteration:          1,
		PendingToolID:      "",
		AwaitingToolResult: false,
	}
}

func TestSessionJSONRoundTrip(t *testing.T) {
	original := sampleSession()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Session
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, *original, restored)
}

func TestSessionRoundTripPreservesThinkingSignature(t *testing.T) {
	original := sampleSession()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Session
	require.NoError(t, json.Unmarshal(data, &restored))

	require.Len(t, restored.Messages, 3)
	blk := restored.Messages[1].Content[0]
	assert.Equal(t, BlockTypeThinking, blk.Type)
	assert.Equal(t, "Need to aggregate revenue by region first.", blk.Thinking)
	assert.Equal(t, "sig-1", blk.Signature)
}

func TestSessionRoundTripSuspended(t *testing.T) {
	original := sampleSession()
	original.SetPendingTool("toolu_02")

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Session
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, "toolu_02", restored.PendingToolID)
	assert.True(t, restored.AwaitingToolResult)
}

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		require.NoError(t, err)
		assert.False(t, seen[id], "session ids must not repeat")
		seen[id] = true

		// 24 random bytes in unpadded base64url.
		assert.Len(t, id, 32)
		assert.NotContains(t, id, "+")
		assert.NotContains(t, id, "/")
		assert.NotContains(t, id, "=")
	}
}

func TestStepKey(t *testing.T) {
	assert.Equal(t, "step_0", StepKey(0))
	assert.Equal(t, "step_7", StepKey(7))
}

func TestPendingToolTransitions(t *testing.T) {
	s := &Session{}

	s.SetPendingTool("toolu_99")
	assert.Equal(t, "toolu_99", s.PendingToolID)
	assert.True(t, s.AwaitingToolResult)

	s.ClearPendingTool()
	assert.Empty(t, s.PendingToolID)
	assert.False(t, s.AwaitingToolResult)
}

func TestSessionCloneIsIndependent(t *testing.T) {
	original := sampleSession()
	clone := original.Clone()

	clone.Query = "changed"
	clone.Schema[0].Columns[0] = "changed"
	clone.Schema[0].SampleRows[0]["region"] = "changed"
	clone.Messages[0].Content[0].Text = "changed"
	clone.QueryResults["step_0"][0] = 'X'
	clone.Iteration = 99

	assert.Equal(t, "Which region had the highest revenue?", original.Query)
	assert.Equal(t, "region", original.Schema[0].Columns[0])
	assert.Equal(t, "EMEA", original.Schema[0].SampleRows[0]["region"])
	assert.Equal(t, "Which region had the highest revenue?", original.Messages[0].Content[0].Text)
	assert.True(t, strings.HasPrefix(string(original.QueryResults["step_0"]), "["))
	assert.Equal(t, 1, original.Iteration)
}

func TestFirstToolUse(t *testing.T) {
	msg := NewAssistantMessage(
		NewTextBlock("let me check"),
		NewToolUseBlock("toolu_a", "run_query", json.RawMessage(`{}`)),
		NewToolUseBlock("toolu_b", "get_column_stats", json.RawMessage(`{}`)),
	)

	blk := msg.FirstToolUse()
	require.NotNil(t, blk)
	assert.Equal(t, "toolu_a", blk.ID)

	plain := NewAssistantMessage(NewTextBlock("no tools here"))
	assert.Nil(t, plain.FirstToolUse())
}

func TestToolUseByID(t *testing.T) {
	msg := NewAssistantMessage(
		NewToolUseBlock("toolu_a", "run_query", json.RawMessage(`{}`)),
		NewToolUseBlock("toolu_b", "get_column_stats", json.RawMessage(`{}`)),
	)

	blk := msg.ToolUseByID("toolu_b")
	require.NotNil(t, blk)
	assert.Equal(t, "get_column_stats", blk.Name)

	assert.Nil(t, msg.ToolUseByID("toolu_missing"))
}

func TestContentBlockMarshalOmitsInactiveFields(t *testing.T) {
	data, err := json.Marshal(NewTextBlock("hello"))
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"text","text":"hello"}`, string(data))
}

func TestAnalysisResultMarshalKeepsEmptyArrays(t *testing.T) {
	result := AnalysisResult{
		Answer:    "Here are the first 3 rows.",
		ChartType: "table",
		ChartData: EmptyChartData,
		Steps:     []StepRecord{},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	assert.JSONEq(t, `{"answer":"Here are the first 3 rows.","chartType":"table","chartData":[],"steps":[]}`, string(data))
}
