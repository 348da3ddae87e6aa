package prediction

import (
	"context"
	"fmt"

	"github.com/okian/exodetect/internal/domain/model"
)

// Runner executes fn for indices [0, n). Implementations may run calls
// concurrently and must return the failure of the lowest failing index, so a
// failure may only cancel calls with a higher index.
type Runner interface {
	Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
}

// sequential is the fallback Runner.
type sequential struct{}

func (sequential) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// Batch validates and predicts lists of observations. A batch fails as a
// whole on its first invalid or failing item.
type Batch struct {
	validator *Validator
	predictor Predictor
	runner    Runner
	maxItems  int
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithRunner sets the runner used to evaluate items.
func WithRunner(r Runner) BatchOption {
	return func(b *Batch) {
		if r != nil {
			b.runner = r
		}
	}
}

// WithMaxItems caps the number of items per batch; zero means no cap.
func WithMaxItems(n int) BatchOption {
	return func(b *Batch) { b.maxItems = n }
}

// NewBatch builds a Batch over validator and predictor.
func NewBatch(v *Validator, p Predictor, opts ...BatchOption) *Batch {
	b := &Batch{validator: v, predictor: p, runner: sequential{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Predict validates every item against modelName, then predicts them in
// input order. Errors for a specific item are wrapped in *ItemError.
func (b *Batch) Predict(ctx context.Context, modelName string, items []map[string]any) ([]model.Prediction, error) {
	kind, ok := model.ParseKind(modelName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, kind)
	}
	if len(items) == 0 {
		return nil, malformed("no observations provided")
	}
	if b.maxItems > 0 && len(items) > b.maxItems {
		return nil, malformed("batch of %d observations exceeds limit of %d", len(items), b.maxItems)
	}

	inputs := make([]Input, len(items))
	for i, item := range items {
		in, err := b.validator.Validate(Request{Model: string(kind), Features: item})
		if err != nil {
			return nil, &ItemError{Index: i, Err: err}
		}
		inputs[i] = in
	}

	out := make([]model.Prediction, len(inputs))
	err := b.runner.Run(ctx, len(inputs), func(ctx context.Context, i int) error {
		p, err := b.predictor.Predict(ctx, inputs[i])
		if err != nil {
			return &ItemError{Index: i, Err: err}
		}
		out[i] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
