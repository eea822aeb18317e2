package service

import (
	"context"
	"errors"

	"github.com/oziev02/pixelflex/internal/domain"
)

type multiPublisher []EventPublisher

// NewMultiPublisher fans events out to every non-nil publisher. Delivery
// continues past failures; the errors are joined.
func NewMultiPublisher(publishers ...EventPublisher) EventPublisher {
	var m multiPublisher
	for _, p := range publishers {
		if p != nil {
			m = append(m, p)
		}
	}
	return m
}

func (m multiPublisher) Publish(ctx context.Context, event domain.ItemEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
