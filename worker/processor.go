package worker

import (
	"context"
	"encoding/json"
)

// Processor handles one decoded task. It is supplied by the embedding
// application; failures are logged and the worker moves on.
type Processor interface {
	Name() string
	Process(ctx context.Context, taskID string, payload json.RawMessage) error
}

// ProcessorFunc adapts a plain function to the Processor interface.
func ProcessorFunc(name string, fn func(ctx context.Context, taskID string, payload json.RawMessage) error) Processor {
	return &processorFunc{name: name, fn: fn}
}

type processorFunc struct {
	name string
	fn   func(ctx context.Context, taskID string, payload json.RawMessage) error
}

func (p *processorFunc) Name() string {
	return p.name
}

func (p *processorFunc) Process(ctx context.Context, taskID string, payload json.RawMessage) error {
	return p.fn(ctx, taskID, payload)
}
