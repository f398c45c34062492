package portalauth

import (
	internalaudit "github.com/MrEthical07/portalauth/internal/audit"
	"github.com/sirupsen/logrus"
)

// AuditEvent is one security-relevant engine event.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel; useful in tests.
type ChannelSink = internalaudit.ChannelSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewLogrusSink returns a sink that writes each event as a structured log entry.
func NewLogrusSink(logger logrus.FieldLogger) AuditSink {
	return internalaudit.NewLogrusSink(logger)
}
