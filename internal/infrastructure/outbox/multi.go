package outbox

import (
	"context"
	"errors"

	domoutbox "github.com/Zhima-Mochi/payflow/internal/domain/outbox"
)

// MultiPublisher fans one publish out to several sinks (the in-process bus
// plus the broker). All sinks are attempted; errors are joined.
type MultiPublisher []domoutbox.Publisher

func (m MultiPublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
