package interpreter

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/arcana/pkg/adapter"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/prompt"
	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const DefaultTimeout = 30 * time.Second

// Gemini interprets readings with a Gemini model
type Gemini struct {
	client    adapter.Gemini
	streaming bool
	timeout   time.Duration
}

type Option func(*Gemini)

// WithStreaming switches between streamed and single-shot generation
func WithStreaming(streaming bool) Option {
	return func(g *Gemini) {
		g.streaming = streaming
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Gemini) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func NewGemini(client adapter.Gemini, opts ...Option) *Gemini {
	g := &Gemini{
		client:    client,
		streaming: true,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Interpret has the same contract as the Dify client: cumulative text, then
// at most one terminal chunk, then close. The terminal chunk is only dropped
// once ctx is done.
func (g *Gemini) Interpret(ctx context.Context, req *model.InterpretationRequest) <-chan model.Chunk {
	ch := make(chan model.Chunk)

	go func() {
		defer close(ch)

		text, err := g.interpret(ctx, req, func(partial string) {
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

func (g *Gemini) interpret(ctx context.Context, req *model.InterpretationRequest, onPartial func(string)) (string, error) {
	query, err := prompt.Format(req)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(query, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System(), ""),
	}

	logger := logging.From(ctx).With("provider", "gemini", "spread", req.SpreadType)
	logger.Debug("send interpretation request", "streaming", g.streaming, "query_length", len(query))

	if !g.streaming {
		resp, err := g.client.GenerateContent(ctx, contents, config)
		if err != nil {
			return "", g.mapError(ctx, err)
		}
		text := adapter.ResponseText(resp)
		if text == "" {
			return "", goerr.Wrap(&model.ServiceError{Message: "No answer received from API"}, "empty response")
		}
		return text, nil
	}

	var text string
	for resp, err := range g.client.GenerateContentStream(ctx, contents, config) {
		if err != nil {
			return text, g.mapError(ctx, err)
		}
		delta := adapter.ResponseText(resp)
		if delta == "" {
			continue
		}
		text += delta
		onPartial(text)
	}

	if ctx.Err() != nil {
		return text, g.mapError(ctx, ctx.Err())
	}
	if text == "" {
		return "", goerr.Wrap(&model.ServiceError{Message: "No answer received from API"}, "stream ended without answer")
	}

	logger.Debug("interpretation stream completed", "length", len(text))
	return text, nil
}

func (g *Gemini) mapError(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return goerr.Wrap(&model.ServiceError{Status: apiErr.Code, Message: apiErr.Message}, "gemini returned an error")
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return goerr.Wrap(&model.ServiceError{Status: apiErrPtr.Code, Message: apiErrPtr.Message}, "gemini returned an error")
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return goerr.Wrap(&model.TimeoutError{Cause: err}, "interpretation call exceeded ceiling",
			goerr.V("timeout", g.timeout.String()),
		)
	case errors.Is(ctx.Err(), context.Canceled):
		return goerr.Wrap(context.Canceled, "interpretation call canceled")
	default:
		return goerr.Wrap(model.ErrTransport, "request failed", goerr.V("cause", err.Error()))
	}
}
