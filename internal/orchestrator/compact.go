package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/provider"
	"github.com/tron-run/tron/internal/reconstruct"
	"github.com/tron-run/tron/internal/wire"
)

// CompactionConfig tunes when and how the loop compacts history.
type CompactionConfig struct {
	MinMessagesBeforeCompact int
	SummaryMaxTokens         int
	ContextThresholdRatio    float64
}

// DefaultCompactionConfig matches the teacher's own compaction
// threshold (75% of the model's context window), gated additionally by
// a minimum history length so short sessions are never compacted.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		MinMessagesBeforeCompact: 4,
		SummaryMaxTokens:         2000,
		ContextThresholdRatio:    0.75,
	}
}

func shouldCompact(result reconstruct.Result, contextWindow int, cfg CompactionConfig) bool {
	if contextWindow <= 0 || len(result.MessagesWithEventIDs) < cfg.MinMessagesBeforeCompact {
		return false
	}
	used := result.TokenUsage.InputTokens + result.TokenUsage.OutputTokens
	return float64(used) >= float64(contextWindow)*cfg.ContextThresholdRatio
}

func buildSummaryPrompt(msgs []reconstruct.Message) string {
	var b strings.Builder
	b.WriteString("Summarize the conversation so far. Preserve file paths touched, decisions made, and outstanding tasks.\n\n")
	for _, m := range msgs {
		text := messageText(m)
		if text == "" {
			continue
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

func messageText(m reconstruct.Message) string {
	switch c := m.Content.(type) {
	case string:
		return c
	case []any:
		var b strings.Builder
		for _, blk := range c {
			if bm, ok := blk.(map[string]any); ok {
				if t, ok := bm["text"].(string); ok {
					b.WriteString(t)
				}
			}
		}
		return b.String()
	default:
		return ""
	}
}

// compact summarizes sessionID's current history via driver and appends
// a compact.summary event. Reconstruct collapses everything before the
// most recent compact.summary event the next time it runs (spec §4.C).
func (p *Processor) compact(ctx context.Context, sessionID string, result reconstruct.Result, driver provider.Driver, model string) error {
	cfg := DefaultCompactionConfig()
	tokensBefore := result.TokenUsage.InputTokens + result.TokenUsage.OutputTokens

	p.hub.Publish(wire.CompactionStart{Base: base(sessionID), Reason: wire.CompactionThresholdExceeded, TokensBefore: tokensBefore})

	req := &provider.CompletionRequest{
		Model: model,
		Messages: []*schema.Message{
			{Role: schema.System, Content: "You produce concise conversation summaries for context compaction."},
			{Role: schema.User, Content: buildSummaryPrompt(messagesOnly(result.MessagesWithEventIDs))},
		},
		MaxTokens: cfg.SummaryMaxTokens,
	}

	stream, err := driver.CreateCompletion(ctx, req)
	if err != nil {
		p.hub.Publish(wire.CompactionComplete{Base: base(sessionID), Success: false, TokensBefore: tokensBefore})
		return fmt.Errorf("compaction completion: %w", err)
	}
	defer stream.Close()

	var summary strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.hub.Publish(wire.CompactionComplete{Base: base(sessionID), Success: false, TokensBefore: tokensBefore})
			return fmt.Errorf("compaction stream: %w", err)
		}
		summary.WriteString(msg.Content)
	}

	summaryText := summary.String()
	payload, _ := json.Marshal(map[string]any{"summary": summaryText})
	if _, err := p.events.Append(ctx, eventstore.AppendParams{SessionID: sessionID, Type: eventstore.EventCompactSummary, Payload: payload}); err != nil {
		return fmt.Errorf("persist compact summary: %w", err)
	}

	ratio := 0.0
	if tokensBefore > 0 {
		ratio = float64(len(summaryText)) / float64(tokensBefore)
	}
	p.hub.Publish(wire.CompactionComplete{
		Base: base(sessionID), Success: true, TokensBefore: tokensBefore,
		CompressionRatio: ratio, Summary: &summaryText,
	})
	return nil
}
