package model

import (
	"context"
	"sync"

	"github.com/parley-ai/parley/core"
)

// MockTurn scripts one Generate call of a MockModel.
type MockTurn struct {
	Text         string            // Answer text, streamed in small deltas
	Thinking     string            // Optional reasoning text streamed before the answer
	Calls        []core.ToolCall   // Tool calls attached to the final message
	FinishReason core.FinishReason // Defaults to stop, or tool_calls when Calls is set
	Usage        *core.Usage       // Optional terminal usage
	Err          error             // Emitted instead of a response when set
}

// MockModel is a lightweight in-memory Model that replays scripted turns.
// Useful for tests and examples; successive Generate calls consume successive
// turns, mirroring a multi-iteration tool loop.
type MockModel struct {
	mu       sync.Mutex
	turns    []MockTurn
	next     int
	closed   bool
	requests []Request
}

// NewMockModel constructs a MockModel that replays the given turns in order.
func NewMockModel(turns ...MockTurn) *MockModel {
	return &MockModel{turns: turns}
}

// Generate implements Model; emits streaming deltas then a final response per
// scripted turn. Calling past the script yields an empty stop turn.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var turn MockTurn
	if m.next < len(m.turns) {
		turn = m.turns[m.next]
		m.next++
	}
	m.mu.Unlock()

	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		id := core.NewID()
		if req.Stream {
			if turn.Thinking != "" {
				if !emit(ctx, respCh, Response{ID: id, Partial: true, ThinkingDelta: turn.Thinking}, errCh) {
					return
				}
			}
			for _, r := range turn.Text {
				if !emit(ctx, respCh, Response{ID: id, Partial: true, Delta: string(r)}, errCh) {
					return
				}
			}
		}

		parts := make([]core.Part, 0, len(turn.Calls)+1)
		if turn.Text != "" {
			parts = append(parts, core.TextPart{Text: turn.Text})
		}
		for _, c := range turn.Calls {
			parts = append(parts, core.ToolCallPart{Call: c})
		}

		finish := turn.FinishReason
		if finish == core.FinishUnspecified {
			finish = core.FinishStop
			if len(turn.Calls) > 0 {
				finish = core.FinishToolCalls
			}
		}

		emit(ctx, respCh, Response{
			ID:           id,
			Partial:      false,
			Message:      core.NewModelMessage(parts...),
			FinishReason: finish,
			Usage:        turn.Usage,
		}, errCh)
	}()

	return respCh, errCh
}

func emit(ctx context.Context, out chan<- Response, resp Response, errCh chan<- error) bool {
	select {
	case <-ctx.Done():
		errCh <- ctx.Err()
		return false
	case out <- resp:
		return true
	}
}

// Close implements Model.
func (m *MockModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockModel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Requests returns every Request seen by Generate, for assertions.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// MockProvider vends a fixed MockModel with configurable capabilities.
type MockProvider struct {
	ProviderName string
	Caps         Capabilities
	Model        *MockModel
}

// Name implements Provider.
func (p *MockProvider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Capabilities implements Provider.
func (p *MockProvider) Capabilities() Capabilities { return p.Caps }

// NewModel implements Provider, returning the configured MockModel.
func (p *MockProvider) NewModel(string) (Model, error) { return p.Model, nil }
