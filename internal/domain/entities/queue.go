package entities

import (
	"time"
)

// DefaultQueueID is the identifier of the single clinic queue document.
const DefaultQueueID = "main"

// QueueDocument is the whole persisted state of one clinic queue: the
// room-availability cursor plus the ordered list of active patients. It is
// read, mutated in memory and written back as a unit; Version is the
// compare-and-swap token guarding that cycle.
type QueueDocument struct {
	QueueID            string     `json:"queue_id"`
	StartTime          time.Time  `json:"start_time"`
	RoomFreeAt         *time.Time `json:"room_free_at"`
	GlobalDelayMinutes int        `json:"global_delay_minutes"`
	Patients           []Patient  `json:"patients"`
	CreatedAt          time.Time  `json:"created_at"`
	Version            int64      `json:"version"`
}

// NewQueueDocument creates a fresh queue: room free now, no delay, empty list.
func NewQueueDocument(queueID string, now time.Time) *QueueDocument {
	return &QueueDocument{
		QueueID:   queueID,
		StartTime: now,
		Patients:  []Patient{},
		CreatedAt: now,
	}
}

// EffectiveFreeAt returns when the room is next available, never earlier
// than now.
func (q *QueueDocument) EffectiveFreeAt(now time.Time) time.Time {
	if q.RoomFreeAt != nil && q.RoomFreeAt.After(now) {
		return *q.RoomFreeAt
	}
	return now
}
