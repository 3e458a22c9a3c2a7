package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"

	"github.com/tron-run/tron/internal/agent"
	"github.com/tron-run/tron/internal/broadcast"
	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/logging"
	"github.com/tron-run/tron/internal/provider"
	"github.com/tron-run/tron/internal/reconstruct"
	"github.com/tron-run/tron/internal/taskstore"
	"github.com/tron-run/tron/internal/wire"
)

const (
	// MaxRetries bounds provider-completion retries per turn.
	MaxRetries = 3
	// RetryInitialInterval/RetryMaxInterval/RetryMaxElapsedTime mirror
	// the teacher's cenkalti/backoff/v4 configuration for the provider
	// completion call.
	RetryInitialInterval = time.Second
	RetryMaxInterval     = 30 * time.Second
	RetryMaxElapsedTime  = 2 * time.Minute
)

// newRetryBackoff builds an exponential backoff with jitter, capped by
// both a retry count and a wall-clock budget, cancelled by ctx.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// runLoop drives one session's agentic loop: reconstruct history from
// the event store, call the driver, persist and broadcast the
// response, execute any requested tools behind the guardrail engine,
// and repeat until the model stops requesting tools or the step
// ceiling is hit (spec §4.F).
func (p *Processor) runLoop(ctx context.Context, sessionID string, state *sessionState, ag *agent.Agent, driver provider.Driver, model string) error {
	limit := maxSteps(ag)
	temperature, topP := samplingParams(ag)

	p.hub.Publish(wire.AgentStart{Base: base(sessionID)})

	var loopErr error
	for state.step = 0; state.step < limit; state.step++ {
		if loopErr = ctx.Err(); loopErr != nil {
			break
		}

		sess, err := p.events.GetSession(ctx, sessionID)
		if err != nil {
			loopErr = fmt.Errorf("load session: %w", err)
			break
		}
		if sess.HeadEventID == nil {
			loopErr = fmt.Errorf("session %s has no head event", sessionID)
			break
		}

		ancestors, err := p.events.GetAncestors(ctx, *sess.HeadEventID)
		if err != nil {
			loopErr = fmt.Errorf("load ancestors: %w", err)
			break
		}
		result, err := reconstructHistory(ancestors)
		if err != nil {
			loopErr = fmt.Errorf("reconstruct history: %w", err)
			break
		}

		contextWindow := 0
		if info, err := p.providers.GetModel(driver.ID(), model); err == nil {
			contextWindow = info.ContextWindow
		}
		if shouldCompact(result, contextWindow, DefaultCompactionConfig()) {
			if cErr := p.compact(ctx, sessionID, result, driver, model); cErr != nil {
				logging.Warn().Err(cErr).Str("session", sessionID).Msg("compaction failed, continuing uncompacted")
			} else {
				sess, err = p.events.GetSession(ctx, sessionID)
				if err != nil {
					loopErr = fmt.Errorf("reload session after compaction: %w", err)
					break
				}
				ancestors, err = p.events.GetAncestors(ctx, *sess.HeadEventID)
				if err != nil {
					loopErr = fmt.Errorf("reload ancestors after compaction: %w", err)
					break
				}
				result, err = reconstructHistory(ancestors)
				if err != nil {
					loopErr = fmt.Errorf("reconstruct after compaction: %w", err)
					break
				}
			}
		}

		todos, _ := p.TodoSummary(ctx, sessionID)
		einoMessages := buildEinoMessages(result, ag, model, todos)

		toolInfos, err := p.tools.ToolInfos()
		if err != nil {
			logging.Warn().Err(err).Msg("tool info listing failed")
		}
		toolInfos = filterToolInfos(ag, toolInfos)

		req := &provider.CompletionRequest{
			Model:       model,
			Messages:    einoMessages,
			Tools:       toolInfos,
			Temperature: temperature,
			TopP:        topP,
		}

		stream, err := createCompletionWithRetry(ctx, driver, req, p.hub, sessionID)
		if err != nil {
			p.hub.Publish(wire.ErrorEvent{Base: base(sessionID), Error: err.Error()})
			loopErr = fmt.Errorf("create completion: %w", err)
			break
		}

		turn := state.step + 1
		p.hub.Publish(wire.TurnStart{Base: base(sessionID), Turn: turn})
		turnStart := time.Now()

		sr, err := processStream(ctx, stream, p.hub, sessionID)
		stream.Close()
		if err != nil {
			loopErr = fmt.Errorf("process stream: %w", err)
			break
		}

		payload, _ := json.Marshal(map[string]any{
			"content": sr.content, "turn": turn, "tokenUsage": sr.usage,
		})
		if _, err := p.events.Append(ctx, eventstore.AppendParams{SessionID: sessionID, Type: eventstore.EventMessageAssistant, Payload: payload}); err != nil {
			loopErr = fmt.Errorf("persist assistant message: %w", err)
			break
		}

		stopReason := sr.finishReason
		p.hub.Publish(wire.TurnEnd{
			Base: base(sessionID), Turn: turn, Duration: time.Since(turnStart).Milliseconds(),
			StopReason: &stopReason, Model: &model,
		})

		if len(sr.toolCalls) == 0 {
			break
		}
		if err := p.executeToolCalls(ctx, sessionID, ag, state, sr.toolCalls); err != nil {
			loopErr = fmt.Errorf("execute tool calls: %w", err)
			break
		}
	}

	var errPtr *string
	if loopErr != nil {
		msg := loopErr.Error()
		errPtr = &msg
	}
	p.hub.Publish(wire.AgentEnd{Base: base(sessionID), Error: errPtr})

	if loopErr == nil {
		if tErr := p.ensureTitle(ctx, sessionID, driver, model); tErr != nil {
			logging.Warn().Err(tErr).Str("session", sessionID).Msg("title generation failed")
		}
	}
	return loopErr
}

// createCompletionWithRetry wraps driver.CreateCompletion in the
// session's retry backoff, broadcasting a wire.APIRetry event on every
// attempt after the first.
func createCompletionWithRetry(ctx context.Context, driver provider.Driver, req *provider.CompletionRequest, hub *broadcast.Hub, sessionID string) (*provider.CompletionStream, error) {
	var stream *provider.CompletionStream
	attempt := 0
	var lastErr error
	op := func() error {
		attempt++
		if attempt > 1 && lastErr != nil {
			hub.Publish(wire.APIRetry{
				Base: base(sessionID), Attempt: attempt, MaxRetries: MaxRetries,
				ErrorCategory: "provider", ErrorMessage: lastErr.Error(),
			})
		}
		s, err := driver.CreateCompletion(ctx, req)
		if err != nil {
			lastErr = err
			return err
		}
		stream = s
		return nil
	}
	if err := backoff.Retry(op, newRetryBackoff(ctx)); err != nil {
		return nil, err
	}
	return stream, nil
}

func buildEinoMessages(result reconstruct.Result, ag *agent.Agent, model string, todos *taskstore.ActiveSummary) []*schema.Message {
	var systemPrompt string
	if result.SystemPrompt != nil {
		systemPrompt = *result.SystemPrompt
	} else {
		systemPrompt = BuildSystemPrompt(SystemPromptInput{Agent: ag, Model: model, Todos: todos})
	}
	msgs := provider.ConvertToEinoMessages(messagesOnly(result.MessagesWithEventIDs))
	return append([]*schema.Message{{Role: schema.System, Content: systemPrompt}}, msgs...)
}

func filterToolInfos(ag *agent.Agent, infos []*schema.ToolInfo) []*schema.ToolInfo {
	if ag == nil {
		return infos
	}
	out := make([]*schema.ToolInfo, 0, len(infos))
	for _, info := range infos {
		if ag.ToolEnabled(info.Name) {
			out = append(out, info)
		}
	}
	return out
}
