// Package core defines the conversation data model shared by every layer of
// parley: message parts, chat messages with their single-text-part invariant,
// streaming result chunks, the per-send streaming state machine and the
// accumulators that fold chunk streams into aggregate results.
//
// Everything here is provider-agnostic. Provider adapters normalize their wire
// formats into these types and the orchestrator drives turns over them.
package core
