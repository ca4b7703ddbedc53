package services

import (
	"sync"
	"time"

	"DistroApp/app/models"

	"go.uber.org/zap"
)

// EventType identifies a store event pushed to observers
type EventType string

const (
	EventStoreChanged  EventType = "store_changed"
	EventSyncCompleted EventType = "sync_completed"
)

// ChangeEvent is emitted after a collection changes or a sync pass finishes
type ChangeEvent struct {
	Type       EventType         `json:"type"`
	Collection models.Collection `json:"collection,omitempty"`
	Count      int               `json:"count"`
	Synced     int               `json:"synced,omitempty"`
	Failed     int               `json:"failed,omitempty"`
	Success    bool              `json:"success"`
	At         time.Time         `json:"at"`
}

// NotificationLevel mirrors the toast levels of the UI
type NotificationLevel string

const (
	NotifyInfo    NotificationLevel = "info"
	NotifySuccess NotificationLevel = "success"
	NotifyWarning NotificationLevel = "warning"
	NotifyError   NotificationLevel = "error"
)

// Notifier shows transient, non-blocking messages to the user
type Notifier interface {
	Notify(level NotificationLevel, message string)
}

// logNotifier is used when no UI is attached
type logNotifier struct {
	logger *zap.Logger
}

func (n logNotifier) Notify(level NotificationLevel, message string) {
	switch level {
	case NotifyError:
		n.logger.Error(message)
	case NotifyWarning:
		n.logger.Warn(message)
	default:
		n.logger.Info(message)
	}
}

// subscribers fans events out to registered observers
type subscribers struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(ChangeEvent)
}

func (s *subscribers) add(fn func(ChangeEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[int]func(ChangeEvent))
	}
	id := s.next
	s.next++
	s.handlers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

func (s *subscribers) publish(logger *zap.Logger, event ChangeEvent) {
	s.mu.RLock()
	handlers := make([]func(ChangeEvent), 0, len(s.handlers))
	for _, fn := range s.handlers {
		handlers = append(handlers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event observer panicked", zap.Any("panic", r), zap.String("event", string(event.Type)))
				}
			}()
			fn(event)
		}()
	}
}
