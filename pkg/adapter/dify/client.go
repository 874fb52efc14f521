package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/prompt"
	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

type Mode string

const (
	ModeBlocking  Mode = "blocking"
	ModeStreaming Mode = "streaming"
)

func (m Mode) Validate() error {
	switch m {
	case ModeBlocking, ModeStreaming:
		return nil
	default:
		return goerr.New("invalid response mode", goerr.V("mode", m))
	}
}

const (
	DefaultTimeout = 30 * time.Second
	DefaultUser    = "tarot-app-user"
)

// HTTPClient is satisfied by *http.Client
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the chat-messages API of a Dify application
type Client struct {
	httpClient HTTPClient
	baseURL    string
	apiKey     string
	user       string
	mode       Mode
	timeout    time.Duration
}

type Option func(*Client)

func WithHTTPClient(c HTTPClient) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithUser(user string) Option {
	return func(client *Client) {
		client.user = user
	}
}

func WithMode(mode Mode) Option {
	return func(client *Client) {
		client.mode = mode
	}
}

// WithTimeout sets the ceiling for a whole call including stream reading
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.timeout = d
	}
}

func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, goerr.New("dify api url is required")
	}
	if apiKey == "" {
		return nil, goerr.New("dify api key is required")
	}

	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		user:       DefaultUser,
		mode:       ModeStreaming,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.mode.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Mode() Mode {
	return c.mode
}

type chatRequest struct {
	Inputs       map[string]any `json:"inputs"`
	Query        string         `json:"query"`
	ResponseMode Mode           `json:"response_mode"`
	User         string         `json:"user"`
}

type chatResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Interpret sends the formatted reading to the service. The returned channel
// yields chunks in arrival order and is closed after exactly one terminal
// chunk (Final or Err). Callers must drain the channel or cancel ctx; once ctx
// is done the terminal chunk may be dropped and the channel closed without it.
func (c *Client) Interpret(ctx context.Context, req *model.InterpretationRequest) <-chan model.Chunk {
	ch := make(chan model.Chunk)

	go func() {
		defer close(ch)

		text, err := c.interpret(ctx, req, func(partial string) {
			select {
			case ch <- model.Chunk{Text: partial}:
			case <-ctx.Done():
			}
		})
		terminal := model.Chunk{Text: text, Final: true}
		if err != nil {
			terminal = model.Chunk{Text: text, Err: err}
		}
		select {
		case ch <- terminal:
		case <-ctx.Done():
		}
	}()

	return ch
}

func (c *Client) interpret(ctx context.Context, req *model.InterpretationRequest, onPartial func(string)) (string, error) {
	query, err := prompt.Format(req)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger := logging.From(ctx).With("mode", c.mode, "spread", req.SpreadType)
	logger.Debug("send interpretation request", "query_length", len(query))

	resp, err := c.post(ctx, "/chat-messages", &chatRequest{
		Inputs:       map[string]any{},
		Query:        query,
		ResponseMode: c.mode,
		User:         c.user,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if c.mode == ModeBlocking {
		answer, err := decodeBlocking(resp.Body)
		if err != nil {
			return "", c.mapReadError(ctx, err)
		}
		return answer, nil
	}

	return c.readStream(ctx, resp.Body, onPartial)
}

func (c *Client) readStream(ctx context.Context, body io.Reader, onPartial func(string)) (string, error) {
	logger := logging.From(ctx)
	dec := NewDecoder(body, logger)

	var text string
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				return text, c.mapReadError(ctx, ctx.Err())
			}
			return text, goerr.Wrap(model.ErrTransport, "stream closed before completion")
		}
		if err != nil {
			return text, c.mapReadError(ctx, err)
		}

		switch ev.Kind {
		case EventMessage, EventAgentMessage:
			if ev.Answer == "" {
				continue
			}
			text = ev.Answer
			onPartial(text)

		case EventMessageEnd:
			if text == "" {
				return "", goerr.Wrap(&model.ServiceError{Message: "No answer received from API"}, "stream ended without answer")
			}
			logger.Debug("interpretation stream completed", "length", len(text), "message_id", ev.MessageID)
			return text, nil

		case EventError:
			msg := ev.Message
			if msg == "" {
				msg = "service returned an error event"
			}
			return text, goerr.Wrap(&model.ServiceError{Status: ev.Status, Message: msg}, "error event in stream",
				goerr.V("code", ev.Code),
			)
		}
	}
}

func decodeBlocking(body io.Reader) (string, error) {
	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) {
			return "", goerr.Wrap(&model.ServiceError{Message: "invalid response body"}, "failed to decode answer")
		}
		return "", goerr.Wrap(err, "failed to read answer")
	}
	if resp.Answer == "" {
		return "", goerr.Wrap(&model.ServiceError{Message: "No answer received from API"}, "empty answer",
			goerr.V("message_id", resp.MessageID),
		)
	}
	return resp.Answer, nil
}

// post sends a JSON request and returns a response with a 2xx status
func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.mode == ModeStreaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	return c.do(ctx, httpReq)
}

func (c *Client) do(ctx context.Context, httpReq *http.Request) (*http.Response, error) {
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.mapReadError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.Body != nil {
			defer resp.Body.Close()
		}
		return nil, goerr.Wrap(serviceError(resp), "service returned error status",
			goerr.V("status", resp.StatusCode),
			goerr.V("path", httpReq.URL.Path),
		)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, goerr.Wrap(&model.ServiceError{Status: resp.StatusCode, Message: "missing response body"}, "empty response")
	}

	return resp, nil
}

func serviceError(resp *http.Response) *model.ServiceError {
	svcErr := &model.ServiceError{
		Status:  resp.StatusCode,
		Message: http.StatusText(resp.StatusCode),
	}
	if resp.Body == nil {
		return svcErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return svcErr
	}

	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		svcErr.Message = body.Message
	}
	return svcErr
}

// mapReadError classifies transport failures. ctx is the call context
// carrying the timeout ceiling.
func (c *Client) mapReadError(ctx context.Context, err error) error {
	var svcErr *model.ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return goerr.Wrap(&model.TimeoutError{Cause: err}, "interpretation call exceeded ceiling",
			goerr.V("timeout", c.timeout.String()),
		)
	case errors.Is(ctx.Err(), context.Canceled):
		return goerr.Wrap(context.Canceled, "interpretation call canceled")
	default:
		return goerr.Wrap(model.ErrTransport, "request failed", goerr.V("cause", err.Error()))
	}
}

// TestConnection sends a minimal blocking message to verify URL and key
func (c *Client) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := json.Marshal(&chatRequest{
		Inputs:       map[string]any{},
		Query:        "Hello",
		ResponseMode: ModeBlocking,
		User:         "test-user",
	})
	if err != nil {
		return goerr.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat-messages", bytes.NewReader(raw))
	if err != nil {
		return goerr.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := decodeBlocking(resp.Body); err != nil {
		return err
	}
	return nil
}

// Parameters returns the application parameters (opening statement,
// suggested questions, input form) as reported by the service
func (c *Client) Parameters(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/parameters", nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}

	resp, err := c.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var params map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&params); err != nil {
		return nil, goerr.Wrap(err, "failed to decode parameters")
	}
	return params, nil
}
