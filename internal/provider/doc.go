// Package provider defines the LLM driver contract the orchestrator
// programs against, plus the Eino message/tool conversion helpers every
// driver implementation shares.
//
// # Scope
//
// This package stops at the contract: no HTTP client, no API key
// handling, no per-vendor request shaping. The teacher (go-opencode's
// internal/provider) wires Anthropic/OpenAI/ARK clients directly behind
// this same interface shape; a real deployment of this module would add
// a sibling package per vendor implementing Driver and register it with
// the Registry the way the teacher's InitializeProviders did. Keeping
// vendor clients out of scope here means the orchestrator and its tests
// depend only on Driver — a fake implementation exercises the full
// conversion path (reconstructed history in, Eino messages out; Eino
// stream chunks in, content blocks out) without a network call.
//
// # Core types
//
//   - Driver: what a model backend must implement — identity, model
//     catalog, streaming completion.
//   - Registry: holds every registered Driver, resolves "driver/model"
//     strings, and picks a default.
//   - CompletionRequest/CompletionStream: the streaming chat-completion
//     contract, built on Eino's schema.Message and StreamReader.
//   - ConvertToEinoMessages/ConvertToEinoTools: turn reconstructed
//     session history and tool definitions into the Eino shapes a
//     Driver consumes.
package provider
