// Package events publishes pipeline progress to the NATS event bus and lets
// CLI watchers subscribe to it.
package events

import (
	"context"
	"time"
)

// Event topic constants
const (
	// TopicPrefix matches every microblog event with a NATS wildcard.
	TopicPrefix = "microblog.>"

	TopicMessagesTransferred = "microblog.messages.transferred"
	TopicRawQuarantined      = "microblog.raw.quarantined"
	TopicExportCompleted     = "microblog.export.completed"
)

// MessagesTransferred is published after each committed transfer batch.
type MessagesTransferred struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Batch      int       `json:"batch"`
	MessageIDs []int64   `json:"message_ids"`
	At         time.Time `json:"at"`
}

// RawQuarantined is published when a raw record is set aside after failing extraction.
type RawQuarantined struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`
	RawID  int64  `json:"raw_id"`
	Reason string `json:"reason"`
}

// ExportCompleted is published after a successful export.
type ExportCompleted struct {
	RunID       string `json:"run_id"`
	Destination string `json:"destination"`
	Messages    int    `json:"messages"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
