package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablemind/tablemind/pkg/config"
	"github.com/tablemind/tablemind/pkg/models"
	"github.com/tablemind/tablemind/pkg/store"
)

func setupTestAnalysisService(t *testing.T) (*AnalysisService, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(5 * time.Minute)
	svc := NewAnalysisService(st, config.DefaultSessionConfig(), config.NewTierRegistry(config.BuiltinTiers()))
	return svc, st
}

func validStartInput() StartAnalysisInput {
	return StartAnalysisInput{
		UserID:      "alice",
		Query:       "Which region leads on revenue?",
		SchemaJSON:  `{"table_name":"sales","columns":["region","revenue"],"sample_rows":[{"region":"EMEA","revenue":1200}],"row_count":480}`,
		ModelTier:   config.ModelTierLow,
		UseThinking: true,
	}
}

func TestNewAnalysisService_NilDeps(t *testing.T) {
	st := store.NewMemoryStore(time.Minute)
	cfg := config.DefaultSessionConfig()
	tiers := config.NewTierRegistry(config.BuiltinTiers())

	assert.Panics(t, func() { NewAnalysisService(nil, cfg, tiers) })
	assert.Panics(t, func() { NewAnalysisService(st, nil, tiers) })
	assert.Panics(t, func() { NewAnalysisService(st, cfg, nil) })
}

func TestStartAnalysis_SingleTableObject(t *testing.T) {
	svc, st := setupTestAnalysisService(t)

	sess, err := svc.StartAnalysis(context.Background(), validStartInput())
	require.NoError(t, err)

	assert.Len(t, sess.ID, 32)
	assert.Equal(t, "alice", sess.UserID)
	assert.Equal(t, "low", sess.ModelTier)
	assert.True(t, sess.UseThinking)
	require.Len(t, sess.Schema, 1)
	assert.Equal(t, "sales", sess.Schema[0].TableName)
	assert.Equal(t, int64(480), sess.Schema[0].RowCount)
	assert.NotNil(t, sess.QueryResults)
	assert.Zero(t, sess.Iteration)
	assert.False(t, sess.AwaitingToolResult)

	stored, err := st.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, stored.ID)
}

func TestStartAnalysis_TableArray(t *testing.T) {
	svc, _ := setupTestAnalysisService(t)

	input := validStartInput()
	input.SchemaJSON = `[{"table_name":"orders","columns":["id"]},{"table_name":"customers","columns":["id","name"]}]`

	sess, err := svc.StartAnalysis(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, sess.Schema, 2)
	assert.Equal(t, "orders", sess.Schema[0].TableName)
	assert.Equal(t, "customers", sess.Schema[1].TableName)
}

func TestStartAnalysis_TrimsQuery(t *testing.T) {
	svc, _ := setupTestAnalysisService(t)

	input := validStartInput()
	input.Query = "  padded question  "

	sess, err := svc.StartAnalysis(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "padded question", sess.Query)
}

func TestStartAnalysis_Validation(t *testing.T) {
	svc, _ := setupTestAnalysisService(t)

	tooMany := make([]string, 0, 11)
	for i := 0; i < 11; i++ {
		tooMany = append(tooMany, `{"table_name":"t","columns":["a"]}`)
	}
	wideColumns := make([]string, 101)
	for i := range wideColumns {
		wideColumns[i] = `"c"`
	}

	cases := []struct {
		name   string
		mutate func(*StartAnalysisInput)
	}{
		{"empty query", func(in *StartAnalysisInput) { in.Query = "   " }},
		{"query too long", func(in *StartAnalysisInput) { in.Query = strings.Repeat("é", 1001) }},
		{"empty schema", func(in *StartAnalysisInput) { in.SchemaJSON = "" }},
		{"schema not json", func(in *StartAnalysisInput) { in.SchemaJSON = "not json" }},
		{"schema wrong shape", func(in *StartAnalysisInput) { in.SchemaJSON = `[1,2,3]` }},
		{"empty table array", func(in *StartAnalysisInput) { in.SchemaJSON = `[]` }},
		{"too many tables", func(in *StartAnalysisInput) {
			in.SchemaJSON = "[" + strings.Join(tooMany, ",") + "]"
		}},
		{"missing table name", func(in *StartAnalysisInput) {
			in.SchemaJSON = `{"columns":["a"]}`
		}},
		{"too many columns", func(in *StartAnalysisInput) {
			in.SchemaJSON = `{"table_name":"wide","columns":[` + strings.Join(wideColumns, ",") + `]}`
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validStartInput()
			tc.mutate(&input)

			_, err := svc.StartAnalysis(context.Background(), input)
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected validation error, got %v", err)
		})
	}
}

func TestStartAnalysis_TruncatesSampleRows(t *testing.T) {
	svc, _ := setupTestAnalysisService(t)

	rows := make([]string, 8)
	for i := range rows {
		rows[i] = `{"a":1}`
	}
	input := validStartInput()
	input.SchemaJSON = `{"table_name":"t","columns":["a"],"sample_rows":[` + strings.Join(rows, ",") + `]}`

	sess, err := svc.StartAnalysis(context.Background(), input)
	require.NoError(t, err)
	assert.Len(t, sess.Schema[0].SampleRows, config.DefaultSessionConfig().SampleRowLimit)
}

func TestStartAnalysis_PaidTierEntitlement(t *testing.T) {
	svc, _ := setupTestAnalysisService(t)

	input := validStartInput()
	input.ModelTier = config.ModelTierHigh

	_, err := svc.StartAnalysis(context.Background(), input)
	assert.ErrorIs(t, err, ErrPaidTierRequired)

	input.HasPaidPlan = true
	sess, err := svc.StartAnalysis(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "high", sess.ModelTier)
}

func TestGetSession(t *testing.T) {
	svc, _ := setupTestAnalysisService(t)
	sess, err := svc.StartAnalysis(context.Background(), validStartInput())
	require.NoError(t, err)

	t.Run("found for owner", func(t *testing.T) {
		got, err := svc.GetSession(context.Background(), sess.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.GetSession(context.Background(), "missing", "alice")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("other user reads not found", func(t *testing.T) {
		_, err := svc.GetSession(context.Background(), sess.ID, "mallory")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty user skips ownership", func(t *testing.T) {
		got, err := svc.GetSession(context.Background(), sess.ID, "")
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
	})
}

// awaitingSession persists a session suspended on tool toolu_1.
func awaitingSession(t *testing.T, svc *AnalysisService, st *store.MemoryStore) *models.Session {
	t.Helper()
	sess, err := svc.StartAnalysis(context.Background(), validStartInput())
	require.NoError(t, err)

	sess.Messages = append(sess.Messages,
		models.NewUserMessage(models.NewTextBlock("initial prompt")),
		models.NewAssistantMessage(models.NewToolUseBlock("toolu_1", "run_query",
			json.RawMessage(`{"thought":"count","sql":"SELECT COUNT(*) FROM sales"}`))),
	)
	sess.Iteration = 1
	sess.SetPendingTool("toolu_1")
	require.NoError(t, st.Update(context.Background(), sess))
	return sess
}

func TestSubmitToolResult_Success(t *testing.T) {
	svc, st := setupTestAnalysisService(t)
	sess := awaitingSession(t, svc, st)

	err := svc.SubmitToolResult(context.Background(), ToolResultInput{
		SessionID: sess.ID,
		ToolID:    "toolu_1",
		Result:    json.RawMessage(`[{"count":3}]`),
		UserID:    "alice",
	})
	require.NoError(t, err)

	stored, err := st.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, stored.AwaitingToolResult)
	assert.Empty(t, stored.PendingToolID)
	assert.Equal(t, 1, stored.StepIndex)
	assert.JSONEq(t, `[{"count":3}]`, string(stored.QueryResults["step_0"]))

	last := stored.LastMessage()
	require.NotNil(t, last)
	assert.Equal(t, models.RoleUser, last.Role)
	require.Len(t, last.Content, 1)
	blk := last.Content[0]
	assert.Equal(t, models.BlockTypeToolResult, blk.Type)
	assert.Equal(t, "toolu_1", blk.ToolUseID)
	assert.False(t, blk.IsError)
	assert.JSONEq(t, `[{"count":3}]`, blk.Content)
}

func TestSubmitToolResult_ToolError(t *testing.T) {
	svc, st := setupTestAnalysisService(t)
	sess := awaitingSession(t, svc, st)

	err := svc.SubmitToolResult(context.Background(), ToolResultInput{
		SessionID: sess.ID,
		ToolID:    "toolu_1",
		Error:     "no such table: sales",
		UserID:    "alice",
	})
	require.NoError(t, err)

	stored, err := st.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.StepIndex)
	assert.Equal(t, "null", string(stored.QueryResults["step_0"]))

	blk := stored.LastMessage().Content[0]
	assert.True(t, blk.IsError)
	assert.Equal(t, "no such table: sales", blk.Content)
}

func TestSubmitToolResult_Preconditions(t *testing.T) {
	svc, st := setupTestAnalysisService(t)
	sess := awaitingSession(t, svc, st)

	t.Run("missing session id", func(t *testing.T) {
		err := svc.SubmitToolResult(context.Background(), ToolResultInput{ToolID: "toolu_1", Error: "x"})
		assert.True(t, IsValidationError(err))
	})

	t.Run("missing tool id", func(t *testing.T) {
		err := svc.SubmitToolResult(context.Background(), ToolResultInput{SessionID: sess.ID, Error: "x"})
		assert.True(t, IsValidationError(err))
	})

	t.Run("neither result nor error", func(t *testing.T) {
		err := svc.SubmitToolResult(context.Background(), ToolResultInput{SessionID: sess.ID, ToolID: "toolu_1"})
		assert.True(t, IsValidationError(err))
	})

	t.Run("unknown session", func(t *testing.T) {
		err := svc.SubmitToolResult(context.Background(), ToolResultInput{
			SessionID: "missing", ToolID: "toolu_1", Error: "x",
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("other user", func(t *testing.T) {
		err := svc.SubmitToolResult(context.Background(), ToolResultInput{
			SessionID: sess.ID, ToolID: "toolu_1", Error: "x", UserID: "mallory",
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("wrong tool id", func(t *testing.T) {
		err := svc.SubmitToolResult(context.Background(), ToolResultInput{
			SessionID: sess.ID, ToolID: "toolu_9", Error: "x", UserID: "alice",
		})
		assert.ErrorIs(t, err, ErrToolMismatch)
	})
}

func TestSubmitToolResult_ReplayRejected(t *testing.T) {
	svc, st := setupTestAnalysisService(t)
	sess := awaitingSession(t, svc, st)

	input := ToolResultInput{
		SessionID: sess.ID,
		ToolID:    "toolu_1",
		Result:    json.RawMessage(`[{"count":3}]`),
		UserID:    "alice",
	}
	require.NoError(t, svc.SubmitToolResult(context.Background(), input))

	// The first submission cleared the pending flags, so a network retry
	// of the same POST is rejected deterministically.
	err := svc.SubmitToolResult(context.Background(), input)
	assert.ErrorIs(t, err, ErrNotAwaitingResult)

	stored, err := st.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.StepIndex)
}

func TestSubmitToolResult_CapsPersistedRows(t *testing.T) {
	st := store.NewMemoryStore(5 * time.Minute)
	cfg := config.DefaultSessionConfig()
	cfg.ResultRowLimit = 3
	svc := NewAnalysisService(st, cfg, config.NewTierRegistry(config.BuiltinTiers()))
	sess := awaitingSession(t, svc, st)

	err := svc.SubmitToolResult(context.Background(), ToolResultInput{
		SessionID: sess.ID,
		ToolID:    "toolu_1",
		Result:    json.RawMessage(`[{"n":1},{"n":2},{"n":3},{"n":4},{"n":5}]`),
		UserID:    "alice",
	})
	require.NoError(t, err)

	stored, err := st.Get(context.Background(), sess.ID)
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(stored.QueryResults["step_0"], &rows))
	require.Len(t, rows, 4)
	assert.Equal(t, float64(1), rows[0]["n"])
	assert.Equal(t, float64(3), rows[2]["n"])
	assert.Equal(t, true, rows[3]["truncated"])
	assert.Equal(t, float64(2), rows[3]["omitted_rows"])

	// The model-visible block carries the capped rows too.
	assert.Equal(t, string(stored.QueryResults["step_0"]), stored.LastMessage().Content[0].Content)
}

func TestCapRows(t *testing.T) {
	t.Run("under limit unchanged", func(t *testing.T) {
		raw := json.RawMessage(`[{"a":1}]`)
		assert.Equal(t, raw, capRows(raw, 3))
	})

	t.Run("non-array passthrough", func(t *testing.T) {
		raw := json.RawMessage(`{"note":"not rows"}`)
		assert.Equal(t, raw, capRows(raw, 3))
	})

	t.Run("scalar passthrough", func(t *testing.T) {
		raw := json.RawMessage(`42`)
		assert.Equal(t, raw, capRows(raw, 3))
	})
}
