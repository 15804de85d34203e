package consumer

import (
	"sync"
	"time"
)

// Metrics counters for the inbound consumer.
type Metrics struct {
	mu sync.RWMutex

	MessagesProcessed int64
	MessagesSucceeded int64
	MessagesFailed    int64
	MessagesSkipped   int64 // unknown user, unroutable input

	ErrorsParse int64
	ErrorsRoute int64
	ErrorsReply int64
	ErrorsAck   int64

	TotalProcessingTime time.Duration
	LastProcessTime     time.Time

	StartTime time.Time
}

// GetSnapshot copy safe to read without the lock.
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed:   m.MessagesProcessed,
		MessagesSucceeded:   m.MessagesSucceeded,
		MessagesFailed:      m.MessagesFailed,
		MessagesSkipped:     m.MessagesSkipped,
		ErrorsParse:         m.ErrorsParse,
		ErrorsRoute:         m.ErrorsRoute,
		ErrorsReply:         m.ErrorsReply,
		ErrorsAck:           m.ErrorsAck,
		TotalProcessingTime: m.TotalProcessingTime,
		LastProcessTime:     m.LastProcessTime,
		StartTime:           m.StartTime,
	}
}

func (m *Metrics) IncrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
}

func (m *Metrics) IncrementSucceeded(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSucceeded++
	m.TotalProcessingTime += duration
	m.LastProcessTime = time.Now()
}

// IncrementFailed errorType is one of parse, route, reply, ack.
func (m *Metrics) IncrementFailed(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch errorType {
	case "parse":
		m.ErrorsParse++
	case "route":
		m.ErrorsRoute++
	case "reply":
		m.ErrorsReply++
	case "ack":
		m.ErrorsAck++
		return
	}
	m.MessagesFailed++
}

func (m *Metrics) IncrementSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSkipped++
}
