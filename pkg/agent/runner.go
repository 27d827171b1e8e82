// Package agent implements the turn loop: given a persisted session, run
// one LLM turn, stream its content, and either conclude the analysis or
// suspend the session on a browser-executed tool call.
package agent

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/tablemind/tablemind/pkg/agent/prompt"
	"github.com/tablemind/tablemind/pkg/config"
	"github.com/tablemind/tablemind/pkg/llm"
	"github.com/tablemind/tablemind/pkg/models"
	"github.com/tablemind/tablemind/pkg/quota"
	"github.com/tablemind/tablemind/pkg/store"
	"github.com/tablemind/tablemind/pkg/stream"
	"github.com/tablemind/tablemind/pkg/tools"
)

// maxIterationsMessage is the stable client-facing message for sessions at
// the iteration cap. Clients match on it, so it must not change.
const maxIterationsMessage = "Maximum analysis iterations reached"

// Runner drives LLM turns over sessions. One Run call performs at most one
// provider call; multi-step analyses re-enter through resume connections.
// Stateless across calls and safe for concurrent use on distinct sessions.
type Runner struct {
	store   store.SessionStore
	llm     llm.Client
	quota   quota.Accountant
	tiers   *config.TierRegistry
	cfg     *config.SessionConfig
	prompts *prompt.Builder
}

// NewRunner wires a Runner.
func NewRunner(
	sessions store.SessionStore,
	client llm.Client,
	accountant quota.Accountant,
	tiers *config.TierRegistry,
	cfg *config.SessionConfig,
	prompts *prompt.Builder,
) *Runner {
	return &Runner{
		store:   sessions,
		llm:     client,
		quota:   accountant,
		tiers:   tiers,
		cfg:     cfg,
		prompts: prompts,
	}
}

// Run executes one turn for the session and writes its events to out.
// Every outcome ends the stream: done after a conclusion or error, or a
// trailing tool_call (no done) when the session suspends on a
// browser-executed tool.
func (r *Runner) Run(ctx context.Context, sess *models.Session, out stream.Emitter) {
	// The subscriber may disconnect mid-turn. The turn still runs to
	// completion so usage is recorded and the session stays resumable.
	ctx = context.WithoutCancel(ctx)

	// 1. Iteration guard.
	if sess.Iteration >= r.cfg.MaxIterations {
		r.finishWithError(ctx, sess, out, maxIterationsMessage)
		return
	}

	// 2. Build the request. The system prompt is rebuilt every turn; the
	// initial user message is seeded only on first entry.
	system, user := r.prompts.Build(sess.Query, sess.Schema)
	if len(sess.Messages) == 0 {
		sess.Messages = append(sess.Messages, models.NewUserMessage(models.NewTextBlock(user)))
	}

	tier, err := r.tiers.Get(config.ParseModelTier(sess.ModelTier))
	if err != nil {
		// Admission verified the tier; a live session can only get here if
		// the registry lost it.
		slog.Error("session tier not in registry", "session_id", sess.ID, "tier", sess.ModelTier)
		r.finishWithError(ctx, sess, out, "Model tier is not configured")
		return
	}

	req := &llm.Request{
		System:   system,
		Messages: sess.Messages,
		Tools:    tools.Catalog(),
		Model:    llm.ModelConfig{Model: tier.Model, MaxTokens: tier.MaxTokens},
	}
	if sess.UseThinking && tier.SupportsThinking {
		req.Model.MaxTokens = tier.ThinkingMaxTokens
		req.Thinking = &llm.ThinkingConfig{BudgetTokens: tier.ThinkingBudget}
	}

	// 3. Invoke the LLM. On failure the session is committed unchanged, so
	// the client can retry the turn by resuming.
	resp, err := r.llm.Call(ctx, req)
	if err != nil {
		slog.Error("llm call failed", "session_id", sess.ID, "error", err)
		r.finishWithError(ctx, sess, out, llm.UserMessage(err))
		return
	}

	// 4. Record usage. Metering failures never break a good turn.
	if err := r.quota.Record(ctx, sess.UserID, resp.Usage.Total()); err != nil {
		slog.Warn("token usage not recorded",
			"session_id", sess.ID, "user_id", sess.UserID, "tokens", resp.Usage.Total(), "error", err)
	}

	// 5. Append the assistant message and charge the iteration.
	sess.Messages = append(sess.Messages, models.NewAssistantMessage(resp.ContentBlocks...))
	sess.Iteration++

	// 6. Emit visible content in block order. A send failure means the
	// subscriber left; the turn finishes regardless.
	for _, blk := range resp.ContentBlocks {
		switch blk.Type {
		case models.BlockTypeText:
			_ = out.SendThinking(blk.Text)
		case models.BlockTypeThinking:
			_ = out.SendExtendedThinking(blk.Thinking)
		}
	}

	// 7. Dispatch the first tool use. At most one per turn is meaningful;
	// any further tool_use blocks are ignored.
	tu := sess.LastMessage().FirstToolUse()
	if tu == nil {
		// Plain text answer; the thinking events already delivered it.
		_ = out.SendDone()
		r.commit(ctx, sess)
		return
	}

	kind, known := tools.KindOf(tu.Name)
	switch {
	case !known:
		r.finishWithError(ctx, sess, out, "Unknown tool requested: "+tu.Name)
	case kind == tools.KindTerminal:
		r.concludeWithAnswer(ctx, sess, out, tu)
	default:
		r.suspendOnTool(ctx, sess, out, tu)
	}
}

// concludeWithAnswer turns a final_answer tool call into the answer event.
func (r *Runner) concludeWithAnswer(ctx context.Context, sess *models.Session, out stream.Emitter, tu *models.ContentBlock) {
	input, err := tools.ParseFinalAnswer(tu.Input)
	if err != nil {
		slog.Warn("malformed final_answer input", "session_id", sess.ID, "error", err)
		r.finishWithError(ctx, sess, out, "The analysis concluded without a valid answer")
		return
	}

	result := synthesiseResult(sess, input)
	_ = out.SendAnswer(result)
	_ = out.SendDone()

	sess.ClearPendingTool()
	r.commit(ctx, sess)
}

// suspendOnTool persists the awaiting state and hands the tool call to the
// client. The commit happens before the tool_call event: a resumed
// connection must always find the pending tool it was told to execute.
func (r *Runner) suspendOnTool(ctx context.Context, sess *models.Session, out stream.Emitter, tu *models.ContentBlock) {
	sess.SetPendingTool(tu.ID)
	if err := r.store.Update(ctx, sess); err != nil {
		slog.Error("session commit failed before suspension", "session_id", sess.ID, "error", err)
		_ = out.SendError("Failed to persist session state")
		_ = out.SendDone()
		return
	}

	_ = out.SendToolCall(tu.ID, tu.Name, tu.Input)
	// No done event: its absence tells the client to execute the tool and
	// resume.
}

// finishWithError ends the stream on the error path and commits whatever
// state the turn accumulated.
func (r *Runner) finishWithError(ctx context.Context, sess *models.Session, out stream.Emitter, msg string) {
	_ = out.SendError(msg)
	_ = out.SendDone()
	r.commit(ctx, sess)
}

// commit persists the session. The stream outcome is already delivered by
// the time commit runs, so failures can only be logged.
func (r *Runner) commit(ctx context.Context, sess *models.Session) {
	if err := r.store.Update(ctx, sess); err != nil {
		slog.Error("session commit failed", "session_id", sess.ID, "error", err)
	}
}

// synthesiseResult assembles the AnalysisResult from the final_answer input
// and the reasoning trace accumulated across the session.
func synthesiseResult(sess *models.Session, input *tools.FinalAnswerInput) *models.AnalysisResult {
	steps := collectSteps(sess)

	result := &models.AnalysisResult{
		Answer:    input.Answer,
		ChartType: input.ChartType,
		XAxis:     input.XAxis,
		YAxis:     input.YAxis,
		ChartData: models.EmptyChartData,
		Steps:     steps,
	}
	if result.ChartType == "" {
		result.ChartType = "table"
	}

	// Chart rows come from the most recent step that returned data.
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Result != nil {
			result.ChartData = steps[i].Result
			break
		}
	}
	return result
}

// collectSteps rebuilds the reasoning trace by pairing each browser-executed
// tool_use block with its tool_result and the rows persisted under the
// step's query-results key.
func collectSteps(sess *models.Session) []models.StepRecord {
	steps := make([]models.StepRecord, 0, sess.StepIndex)

	for mi := range sess.Messages {
		msg := &sess.Messages[mi]
		if msg.Role != models.RoleAssistant {
			continue
		}
		for bi := range msg.Content {
			blk := &msg.Content[bi]
			if blk.Type != models.BlockTypeToolUse {
				continue
			}
			if kind, known := tools.KindOf(blk.Name); !known || kind != tools.KindBrowser {
				continue
			}

			rec := models.StepRecord{
				Step:    len(steps) + 1,
				Tool:    blk.Name,
				Thought: tools.ExtractThought(blk.Input),
				Input:   blk.Input,
			}
			if res := findToolResult(sess.Messages[mi+1:], blk.ID); res != nil {
				if res.IsError {
					rec.Error = res.Content
				} else if stored, ok := sess.QueryResults[models.StepKey(len(steps))]; ok && !isJSONNull(stored) {
					rec.Result = stored
				}
			}
			steps = append(steps, rec)
		}
	}
	return steps
}

// findToolResult returns the tool_result block answering the given tool_use
// id, scanning the messages that follow it.
func findToolResult(messages []models.Message, toolUseID string) *models.ContentBlock {
	for mi := range messages {
		if messages[mi].Role != models.RoleUser {
			continue
		}
		for bi := range messages[mi].Content {
			blk := &messages[mi].Content[bi]
			if blk.Type == models.BlockTypeToolResult && blk.ToolUseID == toolUseID {
				return blk
			}
		}
	}
	return nil
}

// isJSONNull reports whether raw is the JSON null literal, the placeholder
// stored under a step key when the tool errored.
func isJSONNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
