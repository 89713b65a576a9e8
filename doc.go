// Package tenex provides a conversation engine for multi-agent
// orchestration over a pub/sub event relay.
//
// TENEX hosts LLM-backed agents that participate in long-lived
// conversations carried as signed events on a Nostr-style relay network.
// It owns conversation state, phase transitions, delegation bookkeeping,
// and persistence; it does not sign events, speak to a relay, or call a
// model provider directly — those are supplied by the embedding process
// through the Signer, RelayClient, and ModelProvider interfaces in
// pkg/engine.
//
// # Using as a Go Library
//
//	import (
//	    "github.com/tenex-chat/tenex/pkg/config"
//	    "github.com/tenex-chat/tenex/pkg/engine"
//	)
//
//	cfg, err := config.LoadConfig(config.LoaderOptions{Type: config.ConfigTypeFile, Path: "tenex.yaml"})
//	eng, err := engine.New(ctx, cfg, signer, relay, modelProvider)
//	conv, err := eng.HandleEvent(ctx, ev, conversationID, projectID)
//
// # Architecture
//
// Inbound events are decoded (pkg/decoder), routed to a conversation
// tracked by the Conversation Registry (pkg/registry), and appended
// through the Conversation Coordinator (pkg/coordinator), which consults
// the Phase Manager (pkg/phase), the Execution Queue (pkg/execqueue),
// and the Delegation Registry (pkg/delegation) to decide which agent
// gets the turn. Conversations are durably stored through the
// Persistence Adapter (pkg/persistence). pkg/lessons provides a semantic
// index over lessons; the message builder (pkg/messagebuilder) does not
// consult it when agent prompts are assembled.
//
// # Command-line daemon
//
// cmd/tenexd wires pkg/config, pkg/logger, and pkg/engine into a
// standalone process exposing a debug/status HTTP API (pkg/httpapi).
package tenex
