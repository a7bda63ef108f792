package leave

import (
	"context"
	"time"
)

type EventType string

const (
	EventSubmitted EventType = "leave.submitted"
	EventAdded     EventType = "leave.added"
	EventApproved  EventType = "leave.approved"
	EventDenied    EventType = "leave.denied"
	EventCancelled EventType = "leave.cancelled"
	EventDeleted   EventType = "leave.deleted"
	EventReminder  EventType = "leave.reminder"
)

// Event is published after a lifecycle change commits. Email delivery and
// other side channels consume it.
type Event struct {
	Type       EventType `json:"type"`
	RequestID  string    `json:"request_id,omitempty"`
	UserID     string    `json:"user_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	StartDate  string    `json:"start_date,omitempty"`
	EndDate    string    `json:"end_date,omitempty"`
	Days       int       `json:"days,omitempty"`
	Remaining  int       `json:"remaining,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers events. Implementations live in notify/.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }

func requestEvent(t EventType, r Request, actorID string, at time.Time) Event {
	return Event{
		Type:       t,
		RequestID:  r.ID,
		UserID:     r.UserID,
		ActorID:    actorID,
		StartDate:  r.Start.String(),
		EndDate:    r.End.String(),
		Days:       r.Days,
		Notes:      r.AdminNotes,
		OccurredAt: at,
	}
}
