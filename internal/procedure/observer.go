package procedure

import "context"

// Observer is notified around every step attempt. Implementations must be safe
// for concurrent use: parallel steps report from their own goroutines.
type Observer interface {
	StepStarted(procedure string, step Step, index int)
	StepFinished(procedure string, step Step, index int, err error)
}

type observers []Observer

func (o observers) StepStarted(procedure string, step Step, index int) {
	for _, obs := range o {
		obs.StepStarted(procedure, step, index)
	}
}

func (o observers) StepFinished(procedure string, step Step, index int, err error) {
	for _, obs := range o {
		obs.StepFinished(procedure, step, index, err)
	}
}

type observerKey struct{}

// WithObserver returns a context whose step observers include obs in addition
// to any already present.
func WithObserver(ctx context.Context, obs ...Observer) context.Context {
	existing := observersFrom(ctx)
	merged := make(observers, 0, len(existing)+len(obs))
	merged = append(merged, existing...)
	for _, o := range obs {
		if o != nil {
			merged = append(merged, o)
		}
	}
	return context.WithValue(ctx, observerKey{}, merged)
}

func observersFrom(ctx context.Context) observers {
	if ctx == nil {
		return nil
	}
	obs, _ := ctx.Value(observerKey{}).(observers)
	return obs
}
