package ticket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Client talks to a Jira-compatible tracker over its v2 REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) ListOpenTasks(ctx context.Context, userID string) ([]Task, error) {
	jql := fmt.Sprintf(`assignee = "%s" AND statusCategory != Done ORDER BY updated DESC`, userID)
	endpoint := c.baseURL + "/rest/api/2/search?jql=" + url.QueryEscape(jql) + "&fields=summary,status&maxResults=50"

	body, err := c.do(ctx, http.MethodGet, endpoint, "")
	if err != nil {
		return nil, fmt.Errorf("list open tasks for %s: %w", userID, err)
	}

	var tasks []Task
	gjson.GetBytes(body, "issues").ForEach(func(_, issue gjson.Result) bool {
		tasks = append(tasks, Task{
			ID:     issue.Get("key").String(),
			Title:  issue.Get("fields.summary").String(),
			Status: issue.Get("fields.status.name").String(),
		})
		return true
	})
	return tasks, nil
}

func (c *Client) AddComment(ctx context.Context, taskID, text string) error {
	payload, err := sjson.Set("", "body", text)
	if err != nil {
		return fmt.Errorf("build comment payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", c.baseURL, url.PathEscape(taskID))
	if _, err := c.do(ctx, http.MethodPost, endpoint, payload); err != nil {
		return fmt.Errorf("add comment to %s: %w", taskID, err)
	}
	return nil
}

func (c *Client) ListTransitions(ctx context.Context, taskID string) ([]Transition, error) {
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s/transitions", c.baseURL, url.PathEscape(taskID))
	body, err := c.do(ctx, http.MethodGet, endpoint, "")
	if err != nil {
		return nil, fmt.Errorf("list transitions for %s: %w", taskID, err)
	}

	var transitions []Transition
	gjson.GetBytes(body, "transitions").ForEach(func(_, t gjson.Result) bool {
		transitions = append(transitions, Transition{
			ID:   t.Get("id").String(),
			Name: t.Get("name").String(),
		})
		return true
	})
	return transitions, nil
}

func (c *Client) ApplyTransition(ctx context.Context, taskID, transitionID string) error {
	payload, err := sjson.Set("", "transition.id", transitionID)
	if err != nil {
		return fmt.Errorf("build transition payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s/transitions", c.baseURL, url.PathEscape(taskID))
	if _, err := c.do(ctx, http.MethodPost, endpoint, payload); err != nil {
		return fmt.Errorf("apply transition %s to %s: %w", transitionID, taskID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, payload string) ([]byte, error) {
	var reqBody io.Reader
	if payload != "" {
		reqBody = bytes.NewBufferString(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	default:
		return nil, fmt.Errorf("ticket api status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
