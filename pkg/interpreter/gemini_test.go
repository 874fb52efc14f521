package interpreter_test

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/m-mizutani/arcana/pkg/interpreter"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type mockGemini struct {
	generateContent func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	stream          func(ctx context.Context) iter.Seq2[*genai.GenerateContentResponse, error]

	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.contents, m.config = contents, config
	return m.generateContent(ctx, contents, config)
}

func (m *mockGemini) GenerateContentStream(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	m.contents, m.config = contents, config
	return m.stream(ctx)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func streamOf(items ...any) func(context.Context) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(context.Context) iter.Seq2[*genai.GenerateContentResponse, error] {
		return func(yield func(*genai.GenerateContentResponse, error) bool) {
			for _, item := range items {
				var ok bool
				switch v := item.(type) {
				case string:
					ok = yield(textResponse(v), nil)
				case error:
					ok = yield(nil, v)
				}
				if !ok {
					return
				}
			}
		}
	}
}

func singleRequest(t *testing.T) *model.InterpretationRequest {
	t.Helper()
	req, err := model.NewInterpretationRequest(model.SpreadSingle, []model.Card{
		{ID: 17, Name: "The Star", UprightKeywords: []string{"hope"}, UprightMeaning: "Renewal."},
	}, "What should I focus on?")
	gt.NoError(t, err)
	return req
}

func collect(ch <-chan model.Chunk) []model.Chunk {
	var chunks []model.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestGeminiStreamingAccumulates(t *testing.T) {
	mock := &mockGemini{stream: streamOf("The Star ", "", "brings hope.")}
	g := interpreter.NewGemini(mock)

	chunks := collect(g.Interpret(context.Background(), singleRequest(t)))
	gt.A(t, chunks).Length(3)
	gt.Equal(t, chunks[0].Text, "The Star ")
	gt.Equal(t, chunks[1].Text, "The Star brings hope.")
	gt.True(t, chunks[2].Final)
	gt.Equal(t, chunks[2].Text, "The Star brings hope.")

	gt.A(t, mock.contents).Length(1)
	gt.S(t, mock.contents[0].Parts[0].Text).Contains("Your Card: The Star")
	gt.S(t, mock.config.SystemInstruction.Parts[0].Text).Contains("tarot reader")
}

func TestGeminiStreamingErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		mock := &mockGemini{stream: streamOf("partial", genai.APIError{Code: 429, Message: "Resource exhausted"})}
		chunks := collect(interpreter.NewGemini(mock).Interpret(context.Background(), singleRequest(t)))

		last := chunks[len(chunks)-1]
		gt.True(t, errors.Is(last.Err, model.ErrService))
		gt.Equal(t, model.Describe(last.Err), "API Error: Resource exhausted")
		gt.Equal(t, last.Text, "partial")
	})

	t.Run("network error", func(t *testing.T) {
		mock := &mockGemini{stream: streamOf(errors.New("connection reset"))}
		chunks := collect(interpreter.NewGemini(mock).Interpret(context.Background(), singleRequest(t)))

		gt.A(t, chunks).Length(1)
		gt.True(t, errors.Is(chunks[0].Err, model.ErrTransport))
	})

	t.Run("empty answer", func(t *testing.T) {
		mock := &mockGemini{stream: streamOf()}
		chunks := collect(interpreter.NewGemini(mock).Interpret(context.Background(), singleRequest(t)))

		gt.A(t, chunks).Length(1)
		gt.True(t, errors.Is(chunks[0].Err, model.ErrService))
	})

	t.Run("timeout", func(t *testing.T) {
		mock := &mockGemini{stream: func(ctx context.Context) iter.Seq2[*genai.GenerateContentResponse, error] {
			return func(yield func(*genai.GenerateContentResponse, error) bool) {
				<-ctx.Done()
				yield(nil, ctx.Err())
			}
		}}
		g := interpreter.NewGemini(mock, interpreter.WithTimeout(50*time.Millisecond))
		chunks := collect(g.Interpret(context.Background(), singleRequest(t)))

		gt.A(t, chunks).Length(1)
		gt.True(t, errors.Is(chunks[0].Err, model.ErrTimeout))
		gt.True(t, errors.Is(chunks[0].Err, model.ErrTransport))
	})
}

func TestGeminiBlocking(t *testing.T) {
	mock := &mockGemini{
		generateContent: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse("Renewal is near."), nil
		},
	}
	g := interpreter.NewGemini(mock, interpreter.WithStreaming(false))

	chunks := collect(g.Interpret(context.Background(), singleRequest(t)))
	gt.A(t, chunks).Length(1)
	gt.True(t, chunks[0].Final)
	gt.Equal(t, chunks[0].Text, "Renewal is near.")
}

func TestGeminiRejectsInvalidRequest(t *testing.T) {
	g := interpreter.NewGemini(&mockGemini{})
	chunks := collect(g.Interpret(context.Background(), &model.InterpretationRequest{SpreadType: model.SpreadThree}))

	gt.A(t, chunks).Length(1)
	gt.True(t, model.IsFormatError(chunks[0].Err))
}

func TestGeminiAbandonedConsumer(t *testing.T) {
	g := interpreter.NewGemini(&mockGemini{stream: streamOf("The Star ", "brings hope.")})

	ctx, cancel := context.WithCancel(context.Background())
	ch := g.Interpret(ctx, singleRequest(t))

	// take one chunk, then stop reading and cancel
	<-ch
	cancel()
	time.Sleep(200 * time.Millisecond)

	_, ok := <-ch
	gt.False(t, ok)
}
