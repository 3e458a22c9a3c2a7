package rpc

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/eventstore"
)

// sessionCreateParams is session.create's params (spec §6.4): a working
// directory is mandatory, model and title default when omitted.
type sessionCreateParams struct {
	WorkingDirectory string  `json:"workingDirectory"`
	Model            string  `json:"model,omitempty"`
	Title            *string `json:"title,omitempty"`
}

func (s *Server) handleSessionCreate(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionCreateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("workingDirectory", p.WorkingDirectory); err != nil {
		return nil, err
	}

	model := p.Model
	if model == "" {
		driverID, modelID, _, err := s.providers.DefaultModel()
		if err != nil {
			return nil, apperr.InvalidInput("model is required and no default model is configured")
		}
		model = driverID + "/" + modelID
	}

	sess, err := s.orchestrator.Create(ctx, p.WorkingDirectory, filepath.Base(p.WorkingDirectory), model, p.Title)
	if err != nil {
		return nil, err
	}
	return sessionRow(sess), nil
}

type sessionIDParams struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleSessionResume(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	sess, err := s.orchestrator.Get(ctx, p.SessionID)
	if err != nil {
		return nil, notFoundSession(err)
	}
	return map[string]any{
		"sessionId":    sess.ID,
		"model":        sess.LatestModel,
		"messageCount": sess.MessageCount,
		"lastActivity": sess.LastActivityAt,
	}, nil
}

type sessionListParams struct {
	IncludeArchived bool `json:"includeArchived,omitempty"`
	Limit           int  `json:"limit,omitempty"`
}

func (s *Server) handleSessionList(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionListParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	sessions, err := s.orchestrator.List(ctx, eventstore.ListSessionsFilter{
		IncludeArchived: p.IncludeArchived,
		Limit:           p.Limit,
	})
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(sessions))
	for i, sess := range sessions {
		rows[i] = sessionRow(sess)
	}
	return map[string]any{"sessions": rows}, nil
}

func (s *Server) handleSessionDelete(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	if err := s.orchestrator.Delete(ctx, p.SessionID); err != nil {
		return nil, notFoundSession(err)
	}
	return map[string]any{"sessionId": p.SessionID, "deleted": true}, nil
}

func (s *Server) handleSessionArchive(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	if err := s.orchestrator.Archive(ctx, p.SessionID); err != nil {
		return nil, notFoundSession(err)
	}
	return map[string]any{"sessionId": p.SessionID, "archived": true}, nil
}

func (s *Server) handleSessionUnarchive(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	if err := s.orchestrator.Unarchive(ctx, p.SessionID); err != nil {
		return nil, notFoundSession(err)
	}
	return map[string]any{"sessionId": p.SessionID, "archived": false}, nil
}

type sessionForkParams struct {
	SessionID string  `json:"sessionId"`
	Title     *string `json:"title,omitempty"`
}

func (s *Server) handleSessionFork(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionForkParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	sess, err := s.orchestrator.Get(ctx, p.SessionID)
	if err != nil {
		return nil, notFoundSession(err)
	}
	if sess.HeadEventID == nil {
		return nil, apperr.Invariant("cannot fork a session with no events yet")
	}
	child, err := s.orchestrator.Fork(ctx, *sess.HeadEventID, nil, p.Title)
	if err != nil {
		return nil, err
	}
	return sessionRow(child), nil
}

func (s *Server) handleSessionGetHead(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	sess, err := s.orchestrator.Get(ctx, p.SessionID)
	if err != nil {
		return nil, notFoundSession(err)
	}
	return map[string]any{"sessionId": sess.ID, "headEventId": sess.HeadEventID}, nil
}

func (s *Server) handleSessionGetState(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	sess, err := s.orchestrator.Get(ctx, p.SessionID)
	if err != nil {
		return nil, notFoundSession(err)
	}
	step, running := s.orchestrator.ActiveStep(sess.ID)
	state := sessionRow(sess)
	state["isProcessing"] = s.orchestrator.IsProcessing(sess.ID)
	if running {
		state["currentStep"] = step
	}
	return state, nil
}

const maxHistoryPageSize = 200

type sessionGetHistoryParams struct {
	SessionID string `json:"sessionId"`
	Limit     int    `json:"limit,omitempty"`
	BeforeID  string `json:"beforeId,omitempty"`
}

// wireMessage is a reconstructed message projected for the wire: a
// tool.result event's toolCallId/isError are hoisted to the top level
// rather than left nested in a generic payload (spec §4.G).
type wireMessage struct {
	EventIDs   []*string `json:"eventIds"`
	Role       string    `json:"role"`
	Content    any       `json:"content"`
	ToolCallID *string   `json:"toolCallId,omitempty"`
	IsError    *bool     `json:"isError,omitempty"`
}

func (s *Server) handleSessionGetHistory(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionGetHistoryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	if _, err := s.orchestrator.Get(ctx, p.SessionID); err != nil {
		return nil, notFoundSession(err)
	}

	result, err := s.orchestrator.GetHistory(ctx, p.SessionID, nil)
	if err != nil {
		return nil, err
	}

	all := result.MessagesWithEventIDs
	cutoff := len(all)
	if p.BeforeID != "" {
		for i, m := range all {
			if containsEventID(m.EventIDs, p.BeforeID) {
				cutoff = i
				break
			}
		}
	}
	window := all[:cutoff]

	limit := p.Limit
	if limit <= 0 || limit > maxHistoryPageSize {
		limit = maxHistoryPageSize
	}
	hasMore := false
	if len(window) > limit {
		hasMore = true
		window = window[len(window)-limit:]
	}

	messages := make([]wireMessage, len(window))
	for i, m := range window {
		messages[i] = wireMessage{
			EventIDs:   m.EventIDs,
			Role:       m.Message.Role,
			Content:    m.Message.Content,
			ToolCallID: m.Message.ToolCallID,
			IsError:    m.Message.IsError,
		}
	}
	return map[string]any{"messages": messages, "hasMore": hasMore}, nil
}

func containsEventID(ids []*string, target string) bool {
	for _, id := range ids {
		if id != nil && *id == target {
			return true
		}
	}
	return false
}

// sessionRow projects an eventstore.Session into the wire shape shared by
// session.create/list/fork/getState.
func sessionRow(sess *eventstore.Session) map[string]any {
	return map[string]any{
		"sessionId":        sess.ID,
		"workingDirectory": sess.WorkingDirectory,
		"model":            sess.LatestModel,
		"title":            sess.Title,
		"headEventId":      sess.HeadEventID,
		"messageCount":     sess.MessageCount,
		"turnCount":        sess.TurnCount,
		"archived":         sess.Archived,
		"createdAt":        sess.CreatedAt,
		"lastActivity":     sess.LastActivityAt,
	}
}

// notFoundSession normalizes a lookup miss into SESSION_NOT_FOUND,
// per spec §4.G: "translate not-found into SESSION_NOT_FOUND where
// applicable". eventstore already raises apperr.NotFound for a missing
// session; this just re-tags the message with the wire-specific name the
// RPC surface documents.
func notFoundSession(err error) error {
	if apperr.KindOf(err) == apperr.KindNotFound {
		return apperr.NotFound(err.Error())
	}
	return err
}
