// Package client is a typed HTTP client for the inbox API.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Kind       string `json:"kind"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

// Client calls the inbox API on behalf of one operator.
type Client struct {
	http *resty.Client
}

// New creates a client for the server at baseURL authenticated with token.
func New(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/api/v1").
		SetAuthToken(token).
		SetHeader("User-Agent", "inboxctl/1.0").
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second).
		SetError(&APIError{})

	return &Client{http: c}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, query url.Values) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr.Message == "" {
			apiErr = &APIError{Message: strings.TrimSpace(resp.String())}
		}
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}

func conversationPath(id, suffix string) string {
	return "/conversations/" + url.PathEscape(id) + suffix
}

// ListOptions filters a conversation list.
type ListOptions struct {
	Status     string
	AssignedTo string
	Tags       []string
	Unread     bool
	Favorite   bool
	Page       int
	Limit      int
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Status != "" {
		v.Set("status", o.Status)
	}
	if o.AssignedTo != "" {
		v.Set("assigned_to", o.AssignedTo)
	}
	if len(o.Tags) > 0 {
		v.Set("tags", strings.Join(o.Tags, ","))
	}
	if o.Unread {
		v.Set("unread", "true")
	}
	if o.Favorite {
		v.Set("favorite", "true")
	}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	return v
}

// ListConversations returns one page of conversations.
func (c *Client) ListConversations(ctx context.Context, opts ListOptions) (*model.ConversationPage, error) {
	var page model.ConversationPage
	if err := c.do(ctx, resty.MethodGet, "/conversations", nil, &page, opts.values()); err != nil {
		return nil, err
	}
	return &page, nil
}

// Select opens a conversation and returns its history.
func (c *Client) Select(ctx context.Context, id string) (*model.SelectConversationResponse, error) {
	var resp model.SelectConversationResponse
	if err := c.do(ctx, resty.MethodPost, conversationPath(id, "/select"), nil, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send composes an operator message.
func (c *Client) Send(ctx context.Context, id, content string) (*model.Message, error) {
	var msg model.Message
	if err := c.do(ctx, resty.MethodPost, conversationPath(id, "/messages"), model.ComposeMessageRequest{Content: content}, &msg, nil); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SetAI switches the AI on or off.
func (c *Client) SetAI(ctx context.Context, id string, enabled bool) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.do(ctx, resty.MethodPatch, conversationPath(id, "/ai"), model.ToggleAIRequest{Enabled: &enabled}, &conv, nil); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AIReply asks the AI to answer the latest client message.
func (c *Client) AIReply(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	if err := c.do(ctx, resty.MethodPost, conversationPath(id, "/ai/reply"), nil, &msg, nil); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead clears the unread counter.
func (c *Client) MarkRead(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.do(ctx, resty.MethodPatch, conversationPath(id, "/mark-read"), nil, &conv, nil); err != nil {
		return nil, err
	}
	return &conv, nil
}

// RequestLifecycle starts a two-step resolve or archive.
func (c *Client) RequestLifecycle(ctx context.Context, id string, action model.LifecycleAction) (*model.Confirmation, error) {
	var conf model.Confirmation
	if err := c.do(ctx, resty.MethodPost, conversationPath(id, "/lifecycle"), model.LifecycleRequest{Action: action}, &conf, nil); err != nil {
		return nil, err
	}
	return &conf, nil
}

// ConfirmLifecycle commits a pending resolve or archive.
func (c *Client) ConfirmLifecycle(ctx context.Context, id, token string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.do(ctx, resty.MethodPost, conversationPath(id, "/lifecycle/confirm"), model.ConfirmLifecycleRequest{Token: token}, &conv, nil); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CancelLifecycle drops a pending confirmation.
func (c *Client) CancelLifecycle(ctx context.Context, id, token string) error {
	return c.do(ctx, resty.MethodDelete, conversationPath(id, "/lifecycle/"+url.PathEscape(token)), nil, nil, nil)
}

// Assign sets the responsible operator.
func (c *Client) Assign(ctx context.Context, id, operatorID string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.do(ctx, resty.MethodPatch, conversationPath(id, "/assign"), model.AssignRequest{OperatorID: operatorID}, &conv, nil); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AddTag adds a tag.
func (c *Client) AddTag(ctx context.Context, id, tag string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.do(ctx, resty.MethodPost, conversationPath(id, "/tags"), model.TagRequest{Tag: tag}, &conv, nil); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AddNote adds an internal note.
func (c *Client) AddNote(ctx context.Context, id, text string) (*model.Note, error) {
	var note model.Note
	if err := c.do(ctx, resty.MethodPost, conversationPath(id, "/notes"), model.NoteRequest{Text: text}, &note, nil); err != nil {
		return nil, err
	}
	return &note, nil
}

// Schedule records a deferred action.
func (c *Client) Schedule(ctx context.Context, id string, req model.ScheduleActionRequest) (*model.ScheduledAction, error) {
	var action model.ScheduledAction
	if err := c.do(ctx, resty.MethodPost, conversationPath(id, "/schedule"), req, &action, nil); err != nil {
		return nil, err
	}
	return &action, nil
}

// Inbound injects a client message as the WhatsApp channel would.
func (c *Client) Inbound(ctx context.Context, id string, req model.InboundMessageRequest) (*model.InboundResult, error) {
	var result model.InboundResult
	if err := c.do(ctx, resty.MethodPost, conversationPath(id, "/inbound"), req, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// Events replays published conversation events.
func (c *Client) Events(ctx context.Context, id string, afterSequence uint64, limit int) (*model.ListEventsResponse, error) {
	q := url.Values{}
	q.Set("after_sequence", strconv.FormatUint(afterSequence, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp model.ListEventsResponse
	if err := c.do(ctx, resty.MethodGet, conversationPath(id, "/events"), nil, &resp, q); err != nil {
		return nil, err
	}
	return &resp, nil
}
