// Package queue defines the live status audit events exchanged over
// RabbitMQ and the consumer that records them.
package queue

import "fmt"

// LiveStatusQueue is the durable queue carrying LiveStatusChangedEvent.
const LiveStatusQueue = "live.status.changed"

// Actions recorded in LiveStatusChangedEvent.Action.
const (
	ActionSetAct = "set_act"
	ActionStep   = "step"
	ActionToggle = "toggle"
)

// LiveStatusChangedEvent is published after a successful live status write.
// It carries the values written, not the state observed afterwards.
type LiveStatusChangedEvent struct {
	AppID            string `json:"app_id"`
	ShowKey          string `json:"show_key"`
	Path             string `json:"path"`
	Action           string `json:"action"`
	Subject          string `json:"subject"`
	Email            string `json:"email"`
	CurrentActNumber *int   `json:"current_act_number,omitempty"`
	IsTracking       *bool  `json:"is_tracking,omitempty"`
	ChangedAt        string `json:"changed_at"`
}

// Line renders the event as one human-friendly log line.
func (ev LiveStatusChangedEvent) Line() string {
	act, tracking := "-", "-"
	if ev.CurrentActNumber != nil {
		act = fmt.Sprint(*ev.CurrentActNumber)
	}
	if ev.IsTracking != nil {
		tracking = fmt.Sprint(*ev.IsTracking)
	}
	return fmt.Sprintf("[%s] Live status changed | action=%s | show=%q | act=%s | tracking=%s | by=%s | path=%s\n",
		ev.ChangedAt, ev.Action, ev.ShowKey, act, tracking, ev.Email, ev.Path)
}
