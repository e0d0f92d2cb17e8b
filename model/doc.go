// Package model defines the provider abstraction consumed by the
// orchestration core: a normalized request/response pair, the streaming Model
// interface, and the Provider factory with its capability flags.
//
// Vendor adapters live in subpackages (model/openai, model/anthropic) and
// translate these normalized structures to and from their SDK wire formats.
// The core stays agnostic to everything below this package.
package model
