package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"codeberg.org/coursepilot/server/internal/authoring"
)

type RESTOptions struct {
	BaseURL string
	Token   string

	// sent as X-Client-ID so save notifications can name their origin
	ClientID string

	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// RESTClient talks to the host's /api/v1 endpoints.
type RESTClient struct {
	resty *resty.Client
}

var (
	_ Gateway   = (*RESTClient)(nil)
	_ Generator = (*RESTClient)(nil)
)

func NewRESTClient(opts RESTOptions) *RESTClient {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryWait == 0 {
		opts.RetryWait = 500 * time.Millisecond
	}
	if opts.RetryMaxWait == 0 {
		opts.RetryMaxWait = 5 * time.Second
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "coursepilot-authorctl/1.0").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return retryableStatus(r.StatusCode())
		})

	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}
	if opts.ClientID != "" {
		client.SetHeader("X-Client-ID", opts.ClientID)
	}

	return &RESTClient{resty: client}
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError ||
		code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout
}

func (c *RESTClient) request(ctx context.Context) *resty.Request {
	return c.resty.R().SetContext(ctx).SetError(&errorResponse{})
}

// maps transport failures and status codes onto the authoring sentinels
func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, authoring.ErrTransientIO, err)
	}

	if !resp.IsError() {
		return nil
	}

	detail := resp.Status()
	if body, ok := resp.Error().(*errorResponse); ok && body.Error != "" {
		detail = body.Error
		if body.Message != "" {
			detail += ": " + body.Message
		}
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, authoring.ErrNotFound)
	case retryableStatus(code):
		return fmt.Errorf("%s: %w: %s", op, authoring.ErrTransientIO, detail)
	default:
		return fmt.Errorf("%s: %s", op, detail)
	}
}

func (c *RESTClient) Save(ctx context.Context, sessionID string, transcript []authoring.Message, draft authoring.CourseStructure) error {
	resp, err := c.request(ctx).
		SetPathParam("id", sessionID).
		SetBody(saveSessionRequest{Transcript: transcript, Draft: draft}).
		SetResult(&saveSessionResponse{}).
		Put("/api/v1/sessions/{id}")

	return checkResponse("save session", resp, err)
}

func (c *RESTClient) LoadSession(ctx context.Context, sessionID string) (*authoring.Session, error) {
	var out authoring.Session
	resp, err := c.request(ctx).
		SetPathParam("id", sessionID).
		SetResult(&out).
		Get("/api/v1/sessions/{id}")

	if err := checkResponse("load session", resp, err); err != nil {
		return nil, err
	}

	if out.Transcript == nil {
		out.Transcript = []authoring.Message{}
	}
	return &out, nil
}

func (c *RESTClient) LoadDrafts(ctx context.Context, sessionID string) (map[authoring.DraftKey]string, error) {
	var out draftsResponse
	resp, err := c.request(ctx).
		SetPathParam("id", sessionID).
		SetResult(&out).
		Get("/api/v1/sessions/{id}/drafts")

	if err := checkResponse("load drafts", resp, err); err != nil {
		return nil, err
	}

	if out.Drafts == nil {
		out.Drafts = map[authoring.DraftKey]string{}
	}
	return out.Drafts, nil
}

func (c *RESTClient) SaveDraft(ctx context.Context, sessionID string, key authoring.DraftKey, content string) error {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{
			"id":  sessionID,
			"key": key.String(),
		}).
		SetBody(saveDraftRequest{Content: content}).
		SetResult(&okResponse{}).
		Put("/api/v1/sessions/{id}/drafts/{key}")

	return checkResponse("save draft", resp, err)
}

func (c *RESTClient) CreateSession(ctx context.Context, title string) (string, error) {
	var out createSessionResponse
	resp, err := c.request(ctx).
		SetBody(createSessionRequest{Title: title}).
		SetResult(&out).
		Post("/api/v1/sessions")

	if err := checkResponse("create session", resp, err); err != nil {
		return "", err
	}

	if out.ID == "" {
		return "", fmt.Errorf("create session: empty id in response")
	}
	return out.ID, nil
}

func (c *RESTClient) ListSessions(ctx context.Context) ([]authoring.SessionSummary, error) {
	var out listSessionsResponse
	resp, err := c.request(ctx).
		SetResult(&out).
		Get("/api/v1/sessions")

	if err := checkResponse("list sessions", resp, err); err != nil {
		return nil, err
	}

	if out.Sessions == nil {
		out.Sessions = []authoring.SessionSummary{}
	}
	return out.Sessions, nil
}

func (c *RESTClient) DeleteSession(ctx context.Context, sessionID string) error {
	resp, err := c.request(ctx).
		SetPathParam("id", sessionID).
		SetResult(&okResponse{}).
		Delete("/api/v1/sessions/{id}")

	return checkResponse("delete session", resp, err)
}

func (c *RESTClient) RenameSession(ctx context.Context, sessionID, title string) error {
	resp, err := c.request(ctx).
		SetPathParam("id", sessionID).
		SetBody(renameSessionRequest{Title: title}).
		SetResult(&okResponse{}).
		Patch("/api/v1/sessions/{id}")

	return checkResponse("rename session", resp, err)
}

func (c *RESTClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var out GenerateResponse
	resp, err := c.request(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/generate")

	if err := checkResponse("generate", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}
