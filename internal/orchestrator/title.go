package orchestrator

import (
	"context"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/tron-run/tron/internal/provider"
	"github.com/tron-run/tron/internal/wire"
)

const maxTitleLength = 60

// ensureTitle generates and persists a short session title from its
// first user message, once: it skips forked sessions (which inherit
// their parent's topic via ParentSessionID) and sessions that already
// carry a title.
func (p *Processor) ensureTitle(ctx context.Context, sessionID string, driver provider.Driver, model string) error {
	sess, err := p.events.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Title != nil || sess.ParentSessionID != nil || sess.HeadEventID == nil {
		return nil
	}

	ancestors, err := p.events.GetAncestors(ctx, *sess.HeadEventID)
	if err != nil {
		return err
	}
	result, err := reconstructHistory(ancestors)
	if err != nil {
		return err
	}

	var firstUserText string
	for _, m := range messagesOnly(result.MessagesWithEventIDs) {
		if m.Role != "user" {
			continue
		}
		firstUserText = messageText(m)
		break
	}
	if strings.TrimSpace(firstUserText) == "" {
		return nil
	}

	req := &provider.CompletionRequest{
		Model: model,
		Messages: []*schema.Message{
			{Role: schema.System, Content: "Generate a short (under 8 words) descriptive title for this conversation. Respond with only the title, no punctuation around it."},
			{Role: schema.User, Content: firstUserText},
		},
		MaxTokens: 32,
	}
	stream, err := driver.CreateCompletion(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	var title strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		title.WriteString(msg.Content)
	}

	clean := cleanTitle(title.String())
	if clean == "" {
		return nil
	}
	if err := p.events.UpdateTitle(ctx, sessionID, clean); err != nil {
		return err
	}
	p.hub.Publish(wire.SessionUpdated{Base: base(sessionID), Title: &clean, MessageCount: sess.MessageCount})
	return nil
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxTitleLength {
		s = s[:maxTitleLength]
	}
	return s
}
