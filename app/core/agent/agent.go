package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"taskpilot/app/core/pipeline"
	"taskpilot/app/core/session"
	"taskpilot/app/core/ticket"
	"taskpilot/app/pkg/types"
)

// Config carries the conversation loop knobs.
type Config struct {
	TurnTimeout    time.Duration
	SaveRetries    int
	DoneStatusName string
}

// Reply is one agent answer to a user message.
type Reply struct {
	Text   string
	State  string
	TaskID string
}

// Agent drives the per-task conversation state machine. One logical
// worker handles each inbound message; a per-user mutex plus the
// store's version check keep a session from racing against itself.
type Agent struct {
	pipe    *pipeline.Pipeline
	tickets ticket.API
	store   *session.Store
	cfg     Config

	userLocks sync.Map // userID -> *sync.Mutex
}

func New(pipe *pipeline.Pipeline, tickets ticket.API, store *session.Store, cfg Config) *Agent {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 60 * time.Second
	}
	if cfg.SaveRetries <= 0 {
		cfg.SaveRetries = 3
	}
	if cfg.DoneStatusName == "" {
		cfg.DoneStatusName = "Done"
	}
	return &Agent{pipe: pipe, tickets: tickets, store: store, cfg: cfg}
}

// HandleMessage processes one user message. A missing session is
// started from the user's open tasks and the message drives the first
// task immediately. Failed turns leave the session untouched so the
// user can retry.
func (a *Agent) HandleMessage(ctx context.Context, userID, text string) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.TurnTimeout)
	defer cancel()

	mu := a.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < a.cfg.SaveRetries; attempt++ {
		reply, err := a.runTurn(ctx, userID, text)
		if errors.Is(err, session.ErrSessionConflict) {
			lastErr = err
			log.Printf("[Agent] session %s conflicted on save, retrying turn (%d/%d)", userID, attempt+1, a.cfg.SaveRetries)
			continue
		}
		return reply, err
	}
	return Reply{}, fmt.Errorf("turn for %s kept conflicting: %w", userID, lastErr)
}

func (a *Agent) runTurn(ctx context.Context, userID, text string) (Reply, error) {
	sess, err := a.store.Load(ctx, userID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return a.startSession(ctx, userID, text)
	}
	if err != nil {
		return Reply{}, err
	}

	if len(sess.Tasks) == 0 {
		return Reply{Text: "You have no open tasks right now, so there is nothing to update."}, nil
	}
	if sess.AllCompleted() {
		return Reply{Text: "All your tasks are already updated. Great work!", State: session.StateCompleted}, nil
	}
	if _, ok := sess.Current(); !ok {
		sess.CurrentIndex = 0
	}

	task, _ := sess.Current()
	if task.State == session.StateCompleted {
		if next, ok := sess.NextPending(sess.CurrentIndex); ok {
			sess.CurrentIndex = next
			task, _ = sess.Current()
		}
	}

	reply, mutated, err := a.step(ctx, userID, sess, task, text)
	if err != nil {
		return Reply{}, err
	}
	if !mutated {
		return reply, nil
	}

	if err := a.store.Save(ctx, sess); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (a *Agent) startSession(ctx context.Context, userID, text string) (Reply, error) {
	tasks, err := a.tickets.ListOpenTasks(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("start session for %s: %w", userID, err)
	}
	if len(tasks) == 0 {
		return Reply{Text: "You have no open tasks right now, so there is nothing to update."}, nil
	}

	sess := &session.Session{UserID: userID, Tasks: make([]session.TaskState, len(tasks))}
	for i, t := range tasks {
		sess.Tasks[i] = session.TaskState{
			TaskID: t.ID,
			Title:  t.Title,
			Status: t.Status,
			State:  session.StateAwaitingUpdate,
		}
	}
	if err := a.store.Create(ctx, sess); err != nil {
		return Reply{}, err
	}

	task, _ := sess.Current()
	reply, mutated, err := a.step(ctx, userID, sess, task, text)
	if err != nil {
		return Reply{}, err
	}
	if mutated {
		if err := a.store.Save(ctx, sess); err != nil {
			return Reply{}, err
		}
	}
	return reply, nil
}

// step advances one task's state machine. It returns whether the
// session changed and must be saved; ticket-side effects happen before
// any state mutation so a failed commit leaves the pre-turn state.
func (a *Agent) step(ctx context.Context, userID string, sess *session.Session, task *session.TaskState, text string) (Reply, bool, error) {
	switch task.State {
	case session.StateAwaitingUpdate:
		return a.stepDraft(ctx, userID, task, text)
	case session.StateAwaitingEditDecision:
		if wantsEdit(text) {
			task.State = session.StateAwaitingEditInput
			return Reply{
				Text:   "Sure - what should I change in the draft?",
				State:  task.State,
				TaskID: task.TaskID,
			}, true, nil
		}
		task.State = session.StateAwaitingConfirm
		return Reply{
			Text:   fmt.Sprintf("Here is the update for %q:\n\n%s\n\nShall I post it? (yes/no)", task.Title, task.DraftSummary),
			State:  task.State,
			TaskID: task.TaskID,
		}, true, nil
	case session.StateAwaitingEditInput:
		return a.stepEdit(ctx, userID, task, text)
	case session.StateAwaitingConfirm:
		if isAffirmative(text) {
			return a.stepCommit(ctx, userID, sess, task)
		}
		return Reply{
			Text:   "No problem, nothing was posted. What would you like to change?",
			State:  task.State,
			TaskID: task.TaskID,
		}, false, nil
	case session.StateCompleted:
		return Reply{
			Text:   fmt.Sprintf("The update for %q is already posted.", task.Title),
			State:  task.State,
			TaskID: task.TaskID,
		}, false, nil
	default:
		return Reply{}, false, fmt.Errorf("task %s is in unknown state %q", task.TaskID, task.State)
	}
}

func (a *Agent) stepDraft(ctx context.Context, userID string, task *session.TaskState, text string) (Reply, bool, error) {
	resp := a.pipe.Process(ctx, text, types.UserContext{
		UserID:         userID,
		TaskTitle:      task.Title,
		AgentOperation: pipeline.OpDraftSummary,
	})
	if !resp.Success {
		return Reply{
			Text:   fmt.Sprintf("I could not draft that update (%s). Please try again in a moment.", resp.ErrorMessage),
			State:  task.State,
			TaskID: task.TaskID,
		}, false, nil
	}

	task.DraftSummary = resp.GeneratedContent
	task.PendingStatusDone = impliesCompletion(text)
	task.State = session.StateAwaitingEditDecision
	return Reply{
		Text:   fmt.Sprintf("Here is a draft update for %q:\n\n%s\n\nWould you like to edit it?", task.Title, task.DraftSummary),
		State:  task.State,
		TaskID: task.TaskID,
	}, true, nil
}

func (a *Agent) stepEdit(ctx context.Context, userID string, task *session.TaskState, text string) (Reply, bool, error) {
	resp := a.pipe.Process(ctx, text, types.UserContext{
		UserID:         userID,
		TaskTitle:      task.Title,
		AgentOperation: pipeline.OpApplyEdits,
		Draft:          task.DraftSummary,
		EditRequest:    text,
	})
	if !resp.Success {
		return Reply{
			Text:   fmt.Sprintf("I could not apply that edit (%s). Please try again in a moment.", resp.ErrorMessage),
			State:  task.State,
			TaskID: task.TaskID,
		}, false, nil
	}

	task.DraftSummary = resp.GeneratedContent
	task.State = session.StateAwaitingConfirm
	return Reply{
		Text:   fmt.Sprintf("Here is the revised update:\n\n%s\n\nShall I post it? (yes/no)", task.DraftSummary),
		State:  task.State,
		TaskID: task.TaskID,
	}, true, nil
}

func (a *Agent) stepCommit(ctx context.Context, userID string, sess *session.Session, task *session.TaskState) (Reply, bool, error) {
	resp := a.pipe.Process(ctx, task.DraftSummary, types.UserContext{
		UserID:         userID,
		TaskTitle:      task.Title,
		AgentOperation: pipeline.OpAnalyzeUpdate,
	})
	updateType := types.UpdateCommentOnly
	if resp.Success && types.ValidUpdateType(resp.GeneratedContent) {
		updateType = resp.GeneratedContent
	}
	if task.PendingStatusDone && updateType == types.UpdateCommentOnly {
		updateType = types.UpdateCommentAndStatus
	}

	if updateType != types.UpdateStatusOnly {
		if err := a.tickets.AddComment(ctx, task.TaskID, task.DraftSummary); err != nil {
			return a.commitFailure(task, err)
		}
	}
	if updateType != types.UpdateCommentOnly {
		if err := a.transitionToDone(ctx, task.TaskID); err != nil {
			return a.commitFailure(task, err)
		}
	}

	task.FinalSummary = task.DraftSummary
	task.State = session.StateCompleted

	if next, ok := sess.NextPending(sess.CurrentIndex); ok {
		sess.CurrentIndex = next
		nextTask := &sess.Tasks[next]
		nextTask.State = session.StateAwaitingUpdate
		return Reply{
			Text:   fmt.Sprintf("Update posted for %q. Next up: %q - what's the status?", task.Title, nextTask.Title),
			State:  session.StateCompleted,
			TaskID: task.TaskID,
		}, true, nil
	}
	return Reply{
		Text:   fmt.Sprintf("Update posted for %q. That was your last task - all tasks are done!", task.Title),
		State:  session.StateCompleted,
		TaskID: task.TaskID,
	}, true, nil
}

func (a *Agent) commitFailure(task *session.TaskState, err error) (Reply, bool, error) {
	log.Printf("[Agent] commit for task %s failed: %v", task.TaskID, err)
	text := "I could not post the update to the tracker. Nothing was changed - please try again in a moment."
	if errors.Is(err, ticket.ErrUnauthorized) {
		text = "The tracker rejected my credentials, so the update was not posted. Please check the integration setup."
	} else if errors.Is(err, ticket.ErrNotFound) {
		text = "The tracker no longer knows this task, so the update was not posted."
	}
	return Reply{Text: text, State: task.State, TaskID: task.TaskID}, false, nil
}

// transitionToDone applies the first transition named like the
// configured done status, falling back to the last one offered.
func (a *Agent) transitionToDone(ctx context.Context, taskID string) error {
	transitions, err := a.tickets.ListTransitions(ctx, taskID)
	if err != nil {
		return err
	}
	if len(transitions) == 0 {
		return fmt.Errorf("task %s offers no transitions", taskID)
	}

	target := transitions[len(transitions)-1]
	for _, t := range transitions {
		if strings.EqualFold(t.Name, a.cfg.DoneStatusName) {
			target = t
			break
		}
	}
	return a.tickets.ApplyTransition(ctx, taskID, target.ID)
}

func (a *Agent) lockFor(userID string) *sync.Mutex {
	v, _ := a.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}
