package core

import "strings"

// Accumulator folds an incremental result stream into one aggregate result.
// Feed every chunk yielded by a streaming send to Add, then call Final.
// Final is idempotent: repeated calls without further Add return equal values.
type Accumulator struct {
	id       string
	output   strings.Builder
	thinking strings.Builder
	messages []ChatMessage
	finish   FinishReason
	usage    *Usage
	metadata map[string]any
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator { return &Accumulator{} }

// Add folds one chunk into the running state: output text is concatenated,
// messages are appended in order, and the latest non-default finish reason,
// usage and metadata win.
func (a *Accumulator) Add(res ChatResult) {
	if res.ID != "" {
		a.id = res.ID
	}
	a.output.WriteString(res.Output)
	a.thinking.WriteString(res.Thinking)
	a.messages = append(a.messages, res.Messages...)
	if res.FinishReason != FinishUnspecified {
		a.finish = res.FinishReason
	}
	if res.Usage != nil {
		a.usage = res.Usage
	}
	for k, v := range res.Metadata {
		if a.metadata == nil {
			a.metadata = map[string]any{}
		}
		a.metadata[k] = v
	}
}

// Final returns the aggregate of all fed chunks.
func (a *Accumulator) Final() ChatResult {
	msgs := make([]ChatMessage, len(a.messages))
	copy(msgs, a.messages)
	return ChatResult{
		ID:           a.id,
		Output:       a.output.String(),
		Messages:     msgs,
		FinishReason: a.finish,
		Metadata:     a.metadata,
		Thinking:     a.thinking.String(),
		Usage:        a.usage,
	}
}

// MediaAccumulator is the accumulator variant for media-generation streams.
// Instead of concatenating text it collects generated assets: data parts and
// link references carried by the stream's messages.
type MediaAccumulator struct {
	id       string
	assets   []Part
	messages []ChatMessage
	finish   FinishReason
	usage    *Usage
}

// NewMediaAccumulator returns an empty media accumulator.
func NewMediaAccumulator() *MediaAccumulator { return &MediaAccumulator{} }

// Add folds one chunk, extracting data and link parts from any messages.
func (a *MediaAccumulator) Add(res ChatResult) {
	if res.ID != "" {
		a.id = res.ID
	}
	a.messages = append(a.messages, res.Messages...)
	for _, m := range res.Messages {
		for _, p := range m.Parts {
			switch p.(type) {
			case DataPart, LinkPart:
				a.assets = append(a.assets, p)
			}
		}
	}
	if res.FinishReason != FinishUnspecified {
		a.finish = res.FinishReason
	}
	if res.Usage != nil {
		a.usage = res.Usage
	}
}

// Assets returns the collected media parts in production order.
func (a *MediaAccumulator) Assets() []Part {
	out := make([]Part, len(a.assets))
	copy(out, a.assets)
	return out
}

// Final returns the aggregate result. The generated assets are exposed via
// Assets; Final mirrors the message list and terminal signals.
func (a *MediaAccumulator) Final() ChatResult {
	msgs := make([]ChatMessage, len(a.messages))
	copy(msgs, a.messages)
	return ChatResult{
		ID:           a.id,
		Messages:     msgs,
		FinishReason: a.finish,
		Usage:        a.usage,
	}
}
