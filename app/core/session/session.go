package session

import "time"

// Conversation states. A session walks each task through the edit loop
// before committing the update to the tracker.
const (
	StateAwaitingUpdate       = "AWAITING_UPDATE"
	StateAwaitingEditDecision = "AWAITING_EDIT_DECISION"
	StateAwaitingEditInput    = "AWAITING_EDIT_INPUT"
	StateAwaitingConfirm      = "AWAITING_CONFIRM"
	StateCompleted            = "COMPLETED"
)

// TaskState tracks one task inside a session.
type TaskState struct {
	TaskID            string `json:"task_id"`
	Title             string `json:"title"`
	Status            string `json:"status"`
	State             string `json:"state"`
	DraftSummary      string `json:"draft_summary,omitempty"`
	FinalSummary      string `json:"final_summary,omitempty"`
	PendingStatusDone bool   `json:"pending_status_done,omitempty"`
}

// Session is one user's walk through their open tasks. Version backs
// the store's optimistic concurrency check.
type Session struct {
	UserID       string      `json:"user_id"`
	Tasks        []TaskState `json:"tasks"`
	CurrentIndex int         `json:"current_index"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Current returns the task the session is working on, or false when
// the index is out of range.
func (s *Session) Current() (*TaskState, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Tasks) {
		return nil, false
	}
	return &s.Tasks[s.CurrentIndex], true
}

// NextPending scans for the first task that is not completed, starting
// at from. Returns false when every task is done.
func (s *Session) NextPending(from int) (int, bool) {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(s.Tasks); i++ {
		if s.Tasks[i].State != StateCompleted {
			return i, true
		}
	}
	for i := 0; i < from && i < len(s.Tasks); i++ {
		if s.Tasks[i].State != StateCompleted {
			return i, true
		}
	}
	return 0, false
}

// AllCompleted reports whether every task in the session is done.
func (s *Session) AllCompleted() bool {
	for i := range s.Tasks {
		if s.Tasks[i].State != StateCompleted {
			return false
		}
	}
	return len(s.Tasks) > 0
}
