package orchestrator

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"rsyaclean/internal/queue"
)

// Handler processes one kind of queue message
type Handler interface {
	Type() queue.MessageType
	Name() string
	Handle(ctx context.Context, m queue.Message) error
}

type HandlerRegistry interface {
	Register(Handler)
	Get(queue.MessageType) (Handler, bool)
	AvailableHandlers() []queue.MessageType
}

// Registry is a central registry for message handlers
type Registry struct {
	handlers map[queue.MessageType]Handler
	mu       sync.RWMutex
}

func NewHandlerRegistry(handlers ...Handler) HandlerRegistry {
	registry := &Registry{
		handlers: make(map[queue.MessageType]Handler),
	}

	for _, h := range handlers {
		registry.Register(h)
	}

	return registry
}

// Register adds a handler, replacing any previous one for the same type
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[h.Type()] = h

	log.Info().
		Str("messageType", string(h.Type())).
		Str("handler", h.Name()).
		Msg("Registered message handler")
}

func (r *Registry) Get(t queue.MessageType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[t]
	return h, exists
}

func (r *Registry) AvailableHandlers() []queue.MessageType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]queue.MessageType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}

	return types
}
