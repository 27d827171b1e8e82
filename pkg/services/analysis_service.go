// Package services holds the domain layer between HTTP handlers and the
// session store: admission validation, session lifecycle, and tool-result
// ingestion.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tablemind/tablemind/pkg/config"
	"github.com/tablemind/tablemind/pkg/models"
	"github.com/tablemind/tablemind/pkg/store"
)

// maxQueryRunes bounds the user question length.
const maxQueryRunes = 1000

// StartAnalysisInput contains the domain-level data needed to create a
// session. Transformed from the HTTP request + headers by the handler.
type StartAnalysisInput struct {
	UserID      string
	Query       string
	SchemaJSON  string
	ModelTier   config.ModelTier
	UseThinking bool
	HasPaidPlan bool
}

// ToolResultInput carries one browser-side tool outcome back into a
// suspended session. Exactly one of Result and Error is meaningful.
type ToolResultInput struct {
	SessionID string
	ToolID    string
	Result    json.RawMessage
	Error     string

	// UserID scopes the lookup; a mismatch reads as not found.
	UserID string
}

// AnalysisService owns session creation and tool-result ingestion.
type AnalysisService struct {
	store store.SessionStore
	cfg   *config.SessionConfig
	tiers *config.TierRegistry
	now   func() time.Time
}

// NewAnalysisService creates an AnalysisService.
func NewAnalysisService(sessions store.SessionStore, cfg *config.SessionConfig, tiers *config.TierRegistry) *AnalysisService {
	if sessions == nil {
		panic("NewAnalysisService: sessions must not be nil")
	}
	if cfg == nil {
		panic("NewAnalysisService: cfg must not be nil")
	}
	if tiers == nil {
		panic("NewAnalysisService: tiers must not be nil")
	}
	return &AnalysisService{
		store: sessions,
		cfg:   cfg,
		tiers: tiers,
		now:   time.Now,
	}
}

// StartAnalysis validates the question and schema, enforces tier
// entitlement, and persists a fresh session ready for its first turn.
func (s *AnalysisService) StartAnalysis(ctx context.Context, input StartAnalysisInput) (*models.Session, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, NewValidationError("query", "required")
	}
	if utf8.RuneCountInString(query) > maxQueryRunes {
		return nil, NewValidationError("query", fmt.Sprintf("must be at most %d characters", maxQueryRunes))
	}

	tables, err := s.parseSchema(input.SchemaJSON)
	if err != nil {
		return nil, err
	}

	tier, err := s.tiers.Get(input.ModelTier)
	if err != nil {
		return nil, NewValidationError("model", fmt.Sprintf("unknown model tier '%s'", input.ModelTier))
	}
	if tier.RequiresPaid && !input.HasPaidPlan {
		return nil, ErrPaidTierRequired
	}

	id, err := models.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	now := s.now().UTC()
	sess := &models.Session{
		ID:           id,
		UserID:       input.UserID,
		CreatedAt:    now,
		LastActivity: now,
		ModelTier:    string(input.ModelTier),
		UseThinking:  input.UseThinking,
		Query:        query,
		Schema:       tables,
		QueryResults: map[string]json.RawMessage{},
	}

	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	return sess, nil
}

// GetSession loads a session scoped to a user. A session owned by someone
// else reads as not found so ids never leak across users. An empty userID
// skips the ownership check (internal callers).
func (s *AnalysisService) GetSession(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if userID != "" && sess.UserID != userID {
		return nil, ErrNotFound
	}
	return sess, nil
}

// SubmitToolResult ingests one tool outcome into a suspended session:
// appends the tool_result message, records the step's rows, and clears the
// pending flags so the next turn can run.
func (s *AnalysisService) SubmitToolResult(ctx context.Context, input ToolResultInput) error {
	if input.SessionID == "" {
		return NewValidationError("sessionId", "required")
	}
	if input.ToolID == "" {
		return NewValidationError("toolId", "required")
	}
	if len(input.Result) == 0 && input.Error == "" {
		return NewValidationError("result", "either result or error is required")
	}

	sess, err := s.GetSession(ctx, input.SessionID, input.UserID)
	if err != nil {
		return err
	}
	if !sess.AwaitingToolResult {
		return ErrNotAwaitingResult
	}
	if sess.PendingToolID != input.ToolID {
		return ErrToolMismatch
	}

	if sess.QueryResults == nil {
		sess.QueryResults = map[string]json.RawMessage{}
	}
	stepKey := models.StepKey(sess.StepIndex)

	var block models.ContentBlock
	if input.Error != "" {
		block = models.NewToolResultBlock(input.ToolID, input.Error, true)
		// The step key still gets an entry so step numbering stays aligned
		// with the conversation; null marks a failed execution.
		sess.QueryResults[stepKey] = json.RawMessage("null")
	} else {
		rows := capRows(input.Result, s.cfg.ResultRowLimit)
		block = models.NewToolResultBlock(input.ToolID, string(rows), false)
		sess.QueryResults[stepKey] = rows
	}

	sess.Messages = append(sess.Messages, models.NewUserMessage(block))
	sess.StepIndex++
	sess.ClearPendingTool()

	if err := s.store.Update(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// parseSchema accepts a single table object or an array of tables and
// enforces the admission caps.
func (s *AnalysisService) parseSchema(raw string) ([]models.TableInfo, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, NewValidationError("schema", "required")
	}

	var tables []models.TableInfo
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &tables); err != nil {
			return nil, NewValidationError("schema", "must be a table object or an array of tables")
		}
	} else {
		var single models.TableInfo
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, NewValidationError("schema", "must be a table object or an array of tables")
		}
		tables = []models.TableInfo{single}
	}

	if len(tables) == 0 {
		return nil, NewValidationError("schema", "at least one table is required")
	}
	if len(tables) > s.cfg.MaxTables {
		return nil, NewValidationError("schema", fmt.Sprintf("at most %d tables are allowed", s.cfg.MaxTables))
	}

	for i := range tables {
		tbl := &tables[i]
		if tbl.TableName == "" {
			return nil, NewValidationError("schema", fmt.Sprintf("table %d: table_name is required", i))
		}
		if len(tbl.Columns) > s.cfg.MaxColumns {
			return nil, NewValidationError("schema",
				fmt.Sprintf("table '%s': at most %d columns are allowed", tbl.TableName, s.cfg.MaxColumns))
		}
		// Oversized sample sets are trimmed, not rejected: samples only
		// season the prompt.
		if len(tbl.SampleRows) > s.cfg.SampleRowLimit {
			tbl.SampleRows = tbl.SampleRows[:s.cfg.SampleRowLimit]
		}
	}
	return tables, nil
}

// capRows bounds the rows persisted for one tool execution. Non-array
// results pass through unchanged; oversized arrays are cut at the cap with
// a trailing truncation marker so the model knows rows are missing.
func capRows(raw json.RawMessage, limit int) json.RawMessage {
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return raw
	}
	if len(rows) <= limit {
		return raw
	}

	omitted := len(rows) - limit
	capped := append(rows[:limit:limit], json.RawMessage(
		fmt.Sprintf(`{"truncated":true,"omitted_rows":%d}`, omitted)))

	out, err := json.Marshal(capped)
	if err != nil {
		return raw
	}
	return out
}
