package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc/pool"

	"investly/internal/domain"
)

const defaultMaxToolRounds = 5

// OrchestratorConfig holds the retry budgets of a conversation turn
type OrchestratorConfig struct {
	Poll          RetryPolicy
	Extract       RetryPolicy
	Cancel        RetryPolicy
	MaxToolRounds int
	MaxParallel   int // concurrent tool calls within one round
}

// DefaultOrchestratorConfig returns the production budgets
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Poll:          DefaultPollPolicy,
		Extract:       DefaultExtractPolicy,
		Cancel:        DefaultCancelPolicy,
		MaxToolRounds: defaultMaxToolRounds,
		MaxParallel:   4,
	}
}

// TurnBudget is the longest a turn can wait on the provider: the stale-run
// cancel, one poll phase per tool round plus the final one, and extraction
func (c OrchestratorConfig) TurnBudget() time.Duration {
	rounds := c.MaxToolRounds
	if rounds <= 0 {
		rounds = defaultMaxToolRounds
	}
	return time.Duration(rounds+1)*c.Poll.Budget() + c.Cancel.Budget() + c.Extract.Budget()
}

// AssistantOrchestrator drives one conversation turn through the provider's
// thread/run lifecycle. Calls for the same scope must not overlap.
type AssistantOrchestrator struct {
	provider   domain.AssistantProvider
	dispatcher domain.ToolDispatcher
	store      domain.MessageStore
	cfg        OrchestratorConfig
	metrics    MetricsRecorder
	now        func() time.Time
}

// NewAssistantOrchestrator creates a new AssistantOrchestrator. metrics may be nil.
func NewAssistantOrchestrator(
	provider domain.AssistantProvider,
	dispatcher domain.ToolDispatcher,
	store domain.MessageStore,
	cfg OrchestratorConfig,
	metrics MetricsRecorder,
) *AssistantOrchestrator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	return &AssistantOrchestrator{
		provider:   provider,
		dispatcher: dispatcher,
		store:      store,
		cfg:        cfg,
		metrics:    metrics,
		now:        time.Now,
	}
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\"`, `"`)

// Answer runs Process and renders any failure as an {"error": ...} payload
func (o *AssistantOrchestrator) Answer(ctx context.Context, scope, text string) string {
	answer, err := o.Process(ctx, scope, text)
	if err != nil {
		return domain.ErrorPayload(err)
	}
	return answer
}

// Process posts text to the scope's thread, runs the assistant to
// completion and returns its reply
func (o *AssistantOrchestrator) Process(ctx context.Context, scope, text string) (string, error) {
	start := time.Now()
	answer, err := o.process(ctx, scope, text)

	outcome := "completed"
	if err != nil {
		outcome = string(domain.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		log.Printf("[ERR] Scope %s: %v", scope, err)
	}
	o.metrics.RunFinished(outcome, time.Since(start))
	return answer, err
}

func (o *AssistantOrchestrator) process(ctx context.Context, scope, text string) (string, error) {
	scope = strings.TrimSpace(scope)
	text = strings.TrimSpace(text)
	if scope == "" {
		return "", domain.NewError(domain.KindInvalidArgument, "scope is required", nil)
	}
	if text == "" {
		return "", domain.NewError(domain.KindInvalidArgument, "message text is required", nil)
	}

	threadID, err := o.resolveThread(ctx, scope)
	if err != nil {
		return "", err
	}

	if _, err := o.store.Save(ctx, &domain.MessageRecord{
		Scope:     scope,
		Role:      domain.RoleUser,
		Text:      text,
		ThreadID:  threadID,
		CreatedAt: o.now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("failed to save user message: %w", err)
	}

	if err := o.cancelActiveRuns(ctx, threadID); err != nil {
		return "", err
	}

	if err := o.provider.AddMessage(ctx, threadID, text); err != nil {
		return "", fmt.Errorf("failed to post message: %w", err)
	}

	run, err := o.provider.CreateRun(ctx, threadID, o.dispatcher.Tools())
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	log.Printf("[RUN] Started run %s on thread %s", run.ID, threadID)

	if err := o.driveRun(ctx, threadID, run.ID); err != nil {
		return "", err
	}

	answer, err := o.extractAnswer(ctx, threadID, run.ID)
	if err != nil {
		return "", err
	}

	if _, err := o.store.Save(ctx, &domain.MessageRecord{
		Scope:     scope,
		Role:      domain.RoleAssistant,
		Text:      answer,
		ThreadID:  threadID,
		CreatedAt: o.now().UTC(),
	}); err != nil {
		log.Printf("[WARN] Failed to save assistant reply for scope %s: %v", scope, err)
	}

	log.Printf("[OK] Run %s completed", run.ID)
	return answer, nil
}

func (o *AssistantOrchestrator) resolveThread(ctx context.Context, scope string) (string, error) {
	threadID, ok, err := o.store.FindLatestOpenThread(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("failed to look up thread: %w", err)
	}
	if ok && threadID != "" {
		return threadID, nil
	}

	threadID, err = o.provider.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	log.Printf("[RUN] Created thread %s for scope %s", threadID, scope)
	return threadID, nil
}

// cancelActiveRuns cancels every non-terminal run on the thread and waits
// for each to reach a terminal status
func (o *AssistantOrchestrator) cancelActiveRuns(ctx context.Context, threadID string) error {
	runs, err := o.provider.ListRuns(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	for _, run := range runs {
		if !run.IsActive() {
			continue
		}
		log.Printf("[RUN] Cancelling stale run %s (%s)", run.ID, run.Status)

		if run.Status != domain.RunCancelling {
			if _, err := o.provider.CancelRun(ctx, threadID, run.ID); err != nil && !domain.IsConflict(err) {
				return fmt.Errorf("failed to cancel stale run %s: %w", run.ID, err)
			}
		}

		var last domain.RunStatus
		err := o.cfg.Cancel.Do(ctx, func(int) (bool, error) {
			current, found, err := o.findRun(ctx, threadID, run.ID)
			if err != nil {
				return false, err
			}
			if !found {
				return true, nil
			}
			last = current.Status
			return current.Status.IsTerminal(), nil
		})
		if err != nil {
			if errors.Is(err, ErrRetryBudgetExhausted) {
				return &domain.Error{Kind: domain.KindRunTimeout, Status: last,
					Message: fmt.Sprintf("stale run %s did not stop", run.ID), Err: err}
			}
			return fmt.Errorf("failed waiting for stale run %s: %w", run.ID, err)
		}
	}
	return nil
}

func (o *AssistantOrchestrator) findRun(ctx context.Context, threadID, runID string) (domain.Run, bool, error) {
	runs, err := o.provider.ListRuns(ctx, threadID)
	if err != nil {
		return domain.Run{}, false, err
	}
	for _, r := range runs {
		if r.ID == runID {
			return r, true, nil
		}
	}
	return domain.Run{}, false, nil
}

// driveRun polls the run until it completes, answering tool calls on the way
func (o *AssistantOrchestrator) driveRun(ctx context.Context, threadID, runID string) error {
	answered := make(map[string]bool)

	for round := 0; ; round++ {
		run, err := o.pollRun(ctx, threadID, runID, answered)
		if err != nil {
			return err
		}
		if run.Status == domain.RunCompleted {
			return nil
		}

		if round >= o.cfg.MaxToolRounds {
			if _, cerr := o.provider.CancelRun(ctx, threadID, runID); cerr != nil {
				log.Printf("[WARN] Failed to cancel run %s after tool round limit: %v", runID, cerr)
			}
			return &domain.Error{Kind: domain.KindRunTimeout, Status: run.Status,
				Message: fmt.Sprintf("run %s exceeded %d tool rounds", runID, o.cfg.MaxToolRounds)}
		}

		outputs := o.runTools(ctx, run.ToolCalls, answered)
		log.Printf("[RUN] Submitting %d tool outputs for run %s", len(outputs), runID)

		after, err := o.provider.SubmitToolOutputs(ctx, threadID, runID, outputs)
		for _, out := range outputs {
			answered[out.ToolCallID] = true
		}
		if err != nil {
			if domain.IsConflict(err) {
				log.Printf("[WARN] Run %s already resolved elsewhere, polling again", runID)
				continue
			}
			return fmt.Errorf("failed to submit tool outputs: %w", err)
		}
		if after.Status.IsFailure() {
			return &domain.Error{Kind: domain.KindRunTerminalFailure, Status: after.Status,
				Message: fmt.Sprintf("run %s ended after tool submission: %s", runID, after.LastError)}
		}
	}
}

// pollRun waits until the run completes or asks for tool calls not yet answered
func (o *AssistantOrchestrator) pollRun(ctx context.Context, threadID, runID string, answered map[string]bool) (domain.Run, error) {
	var (
		decided domain.Run
		last    domain.RunStatus
	)

	err := o.cfg.Poll.Do(ctx, func(attempt int) (bool, error) {
		run, found, err := o.findRun(ctx, threadID, runID)
		if err != nil {
			log.Printf("[WARN] Poll %d for run %s failed: %v", attempt, runID, err)
			return false, err
		}
		if !found {
			return false, nil
		}
		last = run.Status

		switch {
		case run.Status == domain.RunCompleted:
			decided = run
			return true, nil
		case run.Status.IsFailure():
			return false, backoff.Permanent(&domain.Error{
				Kind:    domain.KindRunTerminalFailure,
				Status:  run.Status,
				Message: fmt.Sprintf("run %s %s %s", runID, run.Status, run.LastError),
			})
		case run.Status == domain.RunRequiresAction:
			for _, call := range run.ToolCalls {
				if !answered[call.ID] {
					decided = run
					return true, nil
				}
			}
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, ErrRetryBudgetExhausted) {
			return domain.Run{}, &domain.Error{Kind: domain.KindRunTimeout, Status: last,
				Message: fmt.Sprintf("run %s did not finish", runID), Err: err}
		}
		return domain.Run{}, err
	}
	return decided, nil
}

// runTools dispatches the unanswered calls concurrently and returns their
// outputs in call order
func (o *AssistantOrchestrator) runTools(ctx context.Context, calls []domain.ToolCall, answered map[string]bool) []domain.ToolOutput {
	type indexed struct {
		index  int
		output domain.ToolOutput
	}

	p := pool.NewWithResults[indexed]().WithMaxGoroutines(o.cfg.MaxParallel)
	for i, call := range calls {
		if answered[call.ID] {
			continue
		}
		p.Go(func() indexed {
			log.Printf("[TOOL] Calling %s (%s)", call.Name, call.ID)
			return indexed{index: i, output: domain.ToolOutput{
				ToolCallID: call.ID,
				Output:     o.dispatcher.Dispatch(ctx, call.Name, call.Arguments),
			}}
		})
	}

	results := p.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	outputs := make([]domain.ToolOutput, 0, len(results))
	for _, r := range results {
		outputs = append(outputs, r.output)
	}
	return outputs
}

// extractAnswer returns the first text reply the run posted, newest first
func (o *AssistantOrchestrator) extractAnswer(ctx context.Context, threadID, runID string) (string, error) {
	var answer string

	err := o.cfg.Extract.Do(ctx, func(attempt int) (bool, error) {
		messages, err := o.provider.ListMessages(ctx, threadID)
		if err != nil {
			return false, err
		}
		for _, m := range messages {
			if m.Role != domain.RoleAssistant || m.RunID != runID || len(m.Contents) == 0 {
				continue
			}
			if first := m.Contents[0]; first.Type == "text" && first.Text != "" {
				answer = unescaper.Replace(first.Text)
				return true, nil
			}
		}
		log.Printf("[WARN] No reply from run %s yet (attempt %d)", runID, attempt)
		return false, nil
	})
	if err != nil {
		if errors.Is(err, ErrRetryBudgetExhausted) {
			return "", &domain.Error{Kind: domain.KindRunTimeout, Status: domain.RunCompleted,
				Message: fmt.Sprintf("no assistant reply found for run %s", runID), Err: err}
		}
		return "", err
	}
	return answer, nil
}
