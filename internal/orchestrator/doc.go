// Package orchestrator drives the agentic loop that turns a user message
// into zero or more provider turns, tool executions, and a final
// assistant response (spec §4.F).
//
// # Architecture
//
// Service is the entry point: session lifecycle (create, fork, archive,
// delete, history) backed by eventstore.Store, plus SendMessage which
// appends the user's message.user event and hands the session to
// Processor.
//
// Processor owns the agentic loop itself. For each step it:
//
//  1. Loads the session's ancestor chain (eventstore.GetAncestors) and
//     rebuilds canonical message history (reconstruct.Reconstruct).
//  2. Triggers compaction (compact.go) when the reconstructed token
//     usage crosses the context-window threshold.
//  3. Converts history to Eino messages (provider.ConvertToEinoMessages)
//     and calls the session's provider.Driver, retrying transient
//     failures with an exponential backoff (cenkalti/backoff/v4).
//  4. Streams the response, translating each Eino chunk into the
//     wire.StreamEvent family (stream.go) and broadcasting the nearest
//     wire.TronEvent over broadcast.Hub.
//  5. Persists the assistant turn (eventstore.EventMessageAssistant) and,
//     for every requested tool call, evaluates guardrail.Engine before
//     tool.Execute and persists the tool.call/tool.result pair.
//
// A session has at most one active loop; a second concurrent Process
// call queues behind the first rather than racing it (Processor.sessions).
//
// Tool-call permission is centralized in guardrail.Engine rather than
// scattered across per-agent permission maps — see agent.Agent's doc
// comment. Processor evaluates it once, immediately before every
// tool.Execute.
package orchestrator
