package uploader

import (
	"sync"
	"time"
)

// Event names emitted by the scheduler.
const (
	EventUploadStart    = "upload-start"
	EventUploadProgress = "upload-progress"
	EventUploadComplete = "upload-complete"
	EventUploadFailed   = "upload-failed"
)

// Event carries chunk identity plus outcome details for observers.
type Event struct {
	Name        string
	SessionID   string
	Seq         int64
	SizeBytes   int64
	RemoteKey   string
	Err         error
	NextRetryAt *time.Time
	Terminal    bool
}

// Handler receives scheduler events. Handlers run synchronously on the
// uploading goroutine; keep them fast.
type Handler func(Event)

type eventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[string][]Handler)}
}

func (b *eventBus) subscribe(name string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

func (b *eventBus) emit(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Name]
	b.mu.RUnlock()
	for _, handler := range handlers {
		handler(event)
	}
}
