package generate

import (
	"fmt"
	"strings"

	"taskpilot/app/pkg/types"
)

const commentSystemPrompt = `You are a professional workplace assistant. Rewrite the user's raw task update as a concise, professional ticket comment.

Rules:
- Keep every fact from the input. Never invent progress, dates, or names.
- First person, past tense where the work is finished.
- 1-3 sentences, no greeting, no sign-off, no markdown.
- Plain professional tone suitable for a project tracker.

Return only the rewritten comment text.`

const emailSystemPrompt = `You are a professional workplace assistant. Write a short status email based on the user's task update.

Rules:
- Subject line first, prefixed with "Subject: ", then a blank line, then the body.
- Professional greeting and sign-off using the provided names when available.
- Keep every fact from the input. Never invent progress, dates, or recipients.
- Body stays under 150 words.

Return only the email text.`

const editSystemPrompt = `You are revising a professional ticket comment. Apply the requested change to the current draft.

Rules:
- Change only what the request asks for. Keep everything else as written.
- Keep the result a concise professional comment, no markdown.
- If the request is unclear, make the smallest reasonable interpretation.

Return only the revised comment text.`

const analyzeSystemPrompt = `You decide how a task update should be applied to a ticket. Read the final summary and answer with JSON.

Pick exactly one update_type:
- "comment_only": the summary reports progress but the task is not finished.
- "status_only": the summary is purely about completion with nothing worth recording as a comment.
- "comment_and_status": the summary reports substantive work and states the task is finished.

Respond with JSON only: {"update_type": "...", "reason": "..."}`

const classifySystemPrompt = `You classify a workplace message into exactly one intent. Answer with JSON.

Intents:
- "task_completion": the user states a task is finished and should be marked done.
- "productivity_query": the user asks about their own stats, workload, or completion numbers.
- "email_generation": the user asks for an email to be written.
- "comment_generation": anything else, including status updates and progress notes.

Respond with JSON only: {"intent": "...", "confidence": 0.0}`

func commentUserPrompt(text string, uctx types.UserContext) string {
	var b strings.Builder
	if uctx.TaskTitle != "" {
		fmt.Fprintf(&b, "Task: %s\n", uctx.TaskTitle)
	}
	if uctx.Role != "" {
		fmt.Fprintf(&b, "Author role: %s\n", uctx.Role)
	}
	if uctx.ProjectType != "" {
		fmt.Fprintf(&b, "Project type: %s\n", uctx.ProjectType)
	}
	fmt.Fprintf(&b, "Raw update: %s", text)
	return b.String()
}

func emailUserPrompt(text string, uctx types.UserContext) string {
	var b strings.Builder
	if uctx.UserName != "" {
		fmt.Fprintf(&b, "Sender: %s\n", uctx.UserName)
	}
	if uctx.TaskTitle != "" {
		fmt.Fprintf(&b, "Task: %s\n", uctx.TaskTitle)
	}
	if recipient, ok := uctx.Extra["recipient"].(string); ok && recipient != "" {
		fmt.Fprintf(&b, "Recipient: %s\n", recipient)
	}
	fmt.Fprintf(&b, "Update to report: %s", text)
	return b.String()
}

func editUserPrompt(draft, request string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current draft:\n%s\n\n", draft)
	fmt.Fprintf(&b, "Requested change: %s", request)
	return b.String()
}

func analyzeUserPrompt(summary string, uctx types.UserContext) string {
	var b strings.Builder
	if uctx.TaskTitle != "" {
		fmt.Fprintf(&b, "Task: %s\n", uctx.TaskTitle)
	}
	fmt.Fprintf(&b, "Final summary: %s", summary)
	return b.String()
}
