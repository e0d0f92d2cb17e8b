// Package memory provides conversation history storage. An agent configured
// with a store resumes a conversation by id, loading prior messages before a
// send and persisting the turn's messages after it.
package memory
