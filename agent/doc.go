// Package agent is the public entry point of the SDK. An Agent binds a
// provider model to a set of tools and drives the full conversation loop:
// send a prompt, stream back text and thinking deltas, execute tool calls
// the model requests, and terminate with a finish reason and usage. Send is
// the blocking one-shot API; SendStream yields every chunk as it is
// produced.
package agent
