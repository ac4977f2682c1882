package dispatcher

import (
	"context"

	"github.com/garyjia/invoice-reconciler/internal/domain/event"
)

// Handler reacts to a thread event
type Handler func(ctx context.Context, evt *event.Event) error

type subscription struct {
	name    string
	handler Handler
}
