package agent

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"taskpilot/app/core/cache"
	"taskpilot/app/core/classify"
	"taskpilot/app/core/generate"
	"taskpilot/app/core/metrics"
	"taskpilot/app/core/model"
	"taskpilot/app/core/pipeline"
	"taskpilot/app/core/session"
	"taskpilot/app/core/ticket"
)

type fakeCaller struct {
	replies map[string]string
}

func (f *fakeCaller) Invoke(ctx context.Context, p model.Params) (model.Completion, error) {
	// Deterministic marker order: random map iteration made the match
	// ambiguous when a prompt contains more than one marker.
	markers := make([]string, 0, len(f.replies))
	for marker := range f.replies {
		markers = append(markers, marker)
	}
	sort.Strings(markers)
	for _, marker := range markers {
		if strings.Contains(p.System, marker) {
			return model.Completion{Text: f.replies[marker], PromptTokens: 10, CompletionTokens: 5}, nil
		}
	}
	return model.Completion{Text: "Generic reply.", PromptTokens: 10, CompletionTokens: 5}, nil
}

type fakeTickets struct {
	tasks       []ticket.Task
	listErr     error
	comments    map[string][]string
	transitions []ticket.Transition
	applied     map[string][]string
}

func newFakeTickets(tasks ...ticket.Task) *fakeTickets {
	return &fakeTickets{
		tasks:    tasks,
		comments: map[string][]string{},
		applied:  map[string][]string{},
		transitions: []ticket.Transition{
			{ID: "11", Name: "In Review"},
			{ID: "31", Name: "Done"},
		},
	}
}

func (f *fakeTickets) ListOpenTasks(ctx context.Context, userID string) ([]ticket.Task, error) {
	return f.tasks, f.listErr
}

func (f *fakeTickets) AddComment(ctx context.Context, taskID, text string) error {
	f.comments[taskID] = append(f.comments[taskID], text)
	return nil
}

func (f *fakeTickets) ListTransitions(ctx context.Context, taskID string) ([]ticket.Transition, error) {
	return f.transitions, nil
}

func (f *fakeTickets) ApplyTransition(ctx context.Context, taskID, transitionID string) error {
	f.applied[taskID] = append(f.applied[taskID], transitionID)
	return nil
}

func (f *fakeTickets) mutations() int {
	n := 0
	for _, c := range f.comments {
		n += len(c)
	}
	for _, a := range f.applied {
		n += len(a)
	}
	return n
}

func defaultReplies() map[string]string {
	return map[string]string{
		"ticket comment": "Completed the analytics tracking work.",
		"revising":       "Completed the analytics tracking work, including page-view events.",
		"update_type":    `{"update_type": "comment_only", "reason": "progress report"}`,
	}
}

func newTestAgent(t *testing.T, tickets ticket.API, replies map[string]string) *Agent {
	t.Helper()

	db, err := session.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	layer := cache.NewLayer(true, cache.NewExact(32), nil)
	gen := generate.New(&fakeCaller{replies: replies}, layer, generate.Config{
		PrimaryModel: "gpt-4o",
		FastModel:    "gpt-3.5-turbo-0125",
		CommentTTL:   time.Minute,
		EmailTTL:     time.Minute,
	})
	pipe := pipeline.New(classify.New(0), gen, generate.NewValidator(0.7, 0.8),
		metrics.NewRegistry(), nil, 0.8, 5000)

	return New(pipe, tickets, session.NewStore(db), Config{
		TurnTimeout:    5 * time.Second,
		SaveRetries:    3,
		DoneStatusName: "Done",
	})
}

func TestFullTaskUpdateConversation(t *testing.T) {
	tickets := newFakeTickets(ticket.Task{ID: "AN-1", Title: "Add Analytics events", Status: "In Progress"})
	a := newTestAgent(t, tickets, defaultReplies())
	ctx := context.Background()

	// free text starts the session and drafts a summary
	reply, err := a.HandleMessage(ctx, "u1", "completed, added tracking")
	if err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}
	if reply.State != session.StateAwaitingEditDecision {
		t.Fatalf("turn 1 state = %s, want edit decision", reply.State)
	}
	if !strings.Contains(reply.Text, "Completed the analytics tracking work.") {
		t.Fatalf("turn 1 reply missing draft: %q", reply.Text)
	}

	// "ok" accepts the draft and moves to confirmation
	reply, err = a.HandleMessage(ctx, "u1", "ok")
	if err != nil {
		t.Fatalf("turn 2 failed: %v", err)
	}
	if reply.State != session.StateAwaitingConfirm {
		t.Fatalf("turn 2 state = %s, want confirm", reply.State)
	}
	if tickets.mutations() != 0 {
		t.Fatal("ticket mutated before confirmation")
	}

	// "yes" commits; pendingStatusDone upgrades comment_only to comment_and_status
	reply, err = a.HandleMessage(ctx, "u1", "yes")
	if err != nil {
		t.Fatalf("turn 3 failed: %v", err)
	}
	if reply.State != session.StateCompleted {
		t.Fatalf("turn 3 state = %s, want completed", reply.State)
	}
	if !strings.Contains(reply.Text, "all tasks are done") {
		t.Fatalf("turn 3 reply = %q, want all-done message", reply.Text)
	}
	if got := tickets.comments["AN-1"]; len(got) != 1 || got[0] != "Completed the analytics tracking work." {
		t.Fatalf("comments = %v", got)
	}
	if got := tickets.applied["AN-1"]; len(got) != 1 || got[0] != "31" {
		t.Fatalf("applied transitions = %v, want the Done transition", got)
	}
}

func TestNonAffirmativeConfirmDoesNotCommit(t *testing.T) {
	tickets := newFakeTickets(ticket.Task{ID: "AN-1", Title: "Add Analytics events", Status: "In Progress"})
	a := newTestAgent(t, tickets, defaultReplies())
	ctx := context.Background()

	a.HandleMessage(ctx, "u1", "completed, added tracking")
	a.HandleMessage(ctx, "u1", "ok")

	reply, err := a.HandleMessage(ctx, "u1", "hmm not sure about the wording")
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if reply.State != session.StateAwaitingConfirm {
		t.Fatalf("state = %s, want still awaiting confirm", reply.State)
	}
	if tickets.mutations() != 0 {
		t.Fatal("non-affirmative input mutated the ticket")
	}

	// still confirmable afterwards
	reply, _ = a.HandleMessage(ctx, "u1", "go ahead")
	if reply.State != session.StateCompleted {
		t.Fatalf("state = %s after go ahead, want completed", reply.State)
	}
}

func TestEditFlowRevisesDraft(t *testing.T) {
	tickets := newFakeTickets(ticket.Task{ID: "AN-1", Title: "Add Analytics events", Status: "In Progress"})
	a := newTestAgent(t, tickets, defaultReplies())
	ctx := context.Background()

	a.HandleMessage(ctx, "u1", "working on the tracking integration, implemented most events")

	reply, err := a.HandleMessage(ctx, "u1", "yes")
	if err != nil {
		t.Fatalf("edit decision failed: %v", err)
	}
	if reply.State != session.StateAwaitingEditInput {
		t.Fatalf("state = %s, want awaiting edit input", reply.State)
	}

	reply, err = a.HandleMessage(ctx, "u1", "mention the page-view events")
	if err != nil {
		t.Fatalf("edit input failed: %v", err)
	}
	if reply.State != session.StateAwaitingConfirm {
		t.Fatalf("state = %s, want confirm", reply.State)
	}
	if !strings.Contains(reply.Text, "page-view events") {
		t.Fatalf("revised draft missing edit: %q", reply.Text)
	}
}

func TestCommentOnlyWithoutCompletionKeywords(t *testing.T) {
	tickets := newFakeTickets(ticket.Task{ID: "AN-1", Title: "Add Analytics events", Status: "In Progress"})
	a := newTestAgent(t, tickets, defaultReplies())
	ctx := context.Background()

	a.HandleMessage(ctx, "u1", "still working on the tracking integration")
	a.HandleMessage(ctx, "u1", "ok")
	reply, err := a.HandleMessage(ctx, "u1", "yes")
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if reply.State != session.StateCompleted {
		t.Fatalf("state = %s", reply.State)
	}

	if len(tickets.comments["AN-1"]) != 1 {
		t.Fatalf("comments = %v", tickets.comments["AN-1"])
	}
	if len(tickets.applied["AN-1"]) != 0 {
		t.Fatalf("comment_only applied a transition: %v", tickets.applied["AN-1"])
	}
}

func TestMultiTaskAdvance(t *testing.T) {
	tickets := newFakeTickets(
		ticket.Task{ID: "AN-1", Title: "Add Analytics events", Status: "In Progress"},
		ticket.Task{ID: "AN-2", Title: "Fix login timeout", Status: "To Do"},
	)
	a := newTestAgent(t, tickets, defaultReplies())
	ctx := context.Background()

	a.HandleMessage(ctx, "u1", "finished the analytics work")
	a.HandleMessage(ctx, "u1", "ok")
	reply, err := a.HandleMessage(ctx, "u1", "yes")
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if !strings.Contains(reply.Text, "Fix login timeout") {
		t.Fatalf("reply = %q, want prompt for the next task", reply.Text)
	}

	a.HandleMessage(ctx, "u1", "still investigating the timeout")
	a.HandleMessage(ctx, "u1", "ok")
	reply, _ = a.HandleMessage(ctx, "u1", "yes")
	if !strings.Contains(reply.Text, "all tasks are done") {
		t.Fatalf("reply = %q, want all-done message", reply.Text)
	}

	if len(tickets.comments["AN-1"]) != 1 || len(tickets.comments["AN-2"]) != 1 {
		t.Fatalf("comments = %v", tickets.comments)
	}
}

func TestEmptyTaskListExplains(t *testing.T) {
	tickets := newFakeTickets()
	a := newTestAgent(t, tickets, defaultReplies())

	reply, err := a.HandleMessage(context.Background(), "u1", "hello")
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if !strings.Contains(reply.Text, "no open tasks") {
		t.Fatalf("reply = %q", reply.Text)
	}
}

func TestIsAffirmativeAcceptsDocumentedPhrases(t *testing.T) {
	for _, phrase := range []string{"yes", "Yep", "yeah", "y", "OK", "okay", "sure", "go ahead", "confirm", "Proceed."} {
		if !isAffirmative(phrase) {
			t.Fatalf("%q not accepted as affirmative", phrase)
		}
	}
	for _, phrase := range []string{"no", "not yet", "change it", ""} {
		if isAffirmative(phrase) {
			t.Fatalf("%q wrongly accepted as affirmative", phrase)
		}
	}
}

func TestImpliesCompletionKeywords(t *testing.T) {
	for _, text := range []string{"completed, added tracking", "it is done.", "finally Resolved"} {
		if !impliesCompletion(text) {
			t.Fatalf("%q should imply completion", text)
		}
	}
	if impliesCompletion("still working on it") {
		t.Fatal("in-progress text implied completion")
	}
}
