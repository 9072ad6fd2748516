package changefeed

import (
	"context"
	"errors"

	"ms-boxoffice/internal/models"
)

// Fanout forwards a change to every notifier in order. All notifiers are
// tried; their errors are joined.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, change models.OrderChange) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, change models.OrderChange) error

func (fn NotifierFunc) Notify(ctx context.Context, change models.OrderChange) error {
	return fn(ctx, change)
}
