// Package rpc exposes the durable core over HTTP: a registry of named,
// dot-separated methods (session.create, agent.message, events.sync, ...)
// bound onto a chi router so the same handler set answers both a generic
// JSON method-call endpoint and a set of REST-shaped convenience routes.
//
// # Core Components
//
//   - Registry: looks up a Handler by its dot-separated method name and
//     invokes it against a json.RawMessage params blob, independent of
//     HTTP — tests call Dispatch directly without a *http.Request in sight.
//   - Server: wires a Registry against the durable core (orchestrator.Service,
//     eventstore.Store, taskstore.Store, guardrail.Engine, provider.Registry,
//     agent.Registry, broadcast.Hub) and exposes it over chi.
//   - sseWriter: the custom Server-Sent Events writer events.sync streams
//     through, kept from the original rationale for not reaching for a
//     third-party SSE package (see sse.go).
//
// # Method Surface
//
// session.{create,resume,list,delete,archive,unarchive,fork,getHead,
// getState,getHistory}, agent.{message,abort,state}, events.{list,sync},
// model.{list,switch}, skill.list, health. Every handler enforces its own required
// parameters (missing ones surface as apperr.KindInvalidInput, translated
// to INVALID_PARAMS at the wire boundary) and translates not-found
// conditions from the underlying stores into SESSION_NOT_FOUND.
//
// # Error Translation
//
// Handlers return a plain Go error; writeErrorFromErr maps it to a wire
// {code, message} pair via apperr.KindOf/apperr.Code, so a handler never
// hand-rolls its own status-code switch — it just wraps with the apperr
// constructor matching what went wrong.
package rpc
