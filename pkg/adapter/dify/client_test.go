package dify_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/arcana/pkg/adapter/dify"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/gt"
)

func threeCardRequest(t *testing.T) *model.InterpretationRequest {
	t.Helper()
	req, err := model.NewInterpretationRequest(model.SpreadThree, []model.Card{
		{ID: 0, Name: "The Fool", UprightKeywords: []string{"beginnings"}, UprightMeaning: "Leap."},
		{ID: 16, Name: "The Tower", UprightKeywords: []string{"upheaval"}, UprightMeaning: "Fall."},
		{ID: 19, Name: "The Sun", UprightKeywords: []string{"joy"}, UprightMeaning: "Shine."},
	}, "")
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

// assertOneTerminal checks that exactly one terminal chunk exists and it is last
func assertOneTerminal(t *testing.T, chunks []model.Chunk) model.Chunk {
	t.Helper()
	gt.A(t, chunks).Longer(0)

	terminal := 0
	for _, c := range chunks {
		if c.IsTerminal() {
			terminal++
		}
	}
	gt.Equal(t, terminal, 1)

	last := chunks[len(chunks)-1]
	gt.True(t, last.IsTerminal())
	return last
}

type capturedRequest struct {
	Path    string
	Auth    string
	Accept  string
	Payload map[string]any
}

func newServer(t *testing.T, captured *capturedRequest, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			captured.Path = r.URL.Path
			captured.Auth = r.Header.Get("Authorization")
			captured.Accept = r.Header.Get("Accept")
			if r.Body != nil && r.Method == http.MethodPost {
				_ = json.NewDecoder(r.Body).Decode(&captured.Payload)
			}
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeSSE(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, f := range frames {
		fmt.Fprintf(w, "data: %s\n\n", f)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func TestInterpretBlocking(t *testing.T) {
	var captured capturedRequest
	srv := newServer(t, &captured, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer": "A journey begins.", "conversation_id": "c1", "message_id": "m1"}`))
	})

	client, err := dify.New(srv.URL+"/", "app-key", dify.WithMode(dify.ModeBlocking))
	gt.NoError(t, err)

	chunks := collect(client.Interpret(context.Background(), threeCardRequest(t)))
	gt.A(t, chunks).Length(1)
	last := assertOneTerminal(t, chunks)
	gt.True(t, last.Final)
	gt.Equal(t, last.Text, "A journey begins.")

	gt.Equal(t, captured.Path, "/chat-messages")
	gt.Equal(t, captured.Auth, "Bearer app-key")
	gt.Equal(t, captured.Payload["response_mode"], any("blocking"))
	gt.Equal(t, captured.Payload["user"], any("tarot-app-user"))
	gt.Equal(t, captured.Payload["inputs"], any(map[string]any{}))
	gt.S(t, captured.Payload["query"].(string)).Contains("Past: The Fool")
}

func TestInterpretStreaming(t *testing.T) {
	var captured capturedRequest
	srv := newServer(t, &captured, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"event": "message", "answer": "The Fool"}`,
			`{"event": "ping"}`,
			`{"event": "message", "answer": "The Fool suggests..."}`,
			`{"event": "message_end", "message_id": "m1"}`,
		)
	})

	client, err := dify.New(srv.URL, "app-key")
	gt.NoError(t, err)

	chunks := collect(client.Interpret(context.Background(), threeCardRequest(t)))
	last := assertOneTerminal(t, chunks)
	gt.True(t, last.Final)
	gt.Equal(t, last.Text, "The Fool suggests...")

	var texts []string
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	gt.Equal(t, texts, []string{"The Fool", "The Fool suggests...", "The Fool suggests..."})

	gt.Equal(t, captured.Accept, "text/event-stream")
	gt.Equal(t, captured.Payload["response_mode"], any("streaming"))
}

func TestInterpretStreamingErrorEvent(t *testing.T) {
	srv := newServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"event": "message", "answer": "partial"}`,
			`{"event": "error", "status": 500, "code": "model_error", "message": "model overloaded"}`,
			`{"event": "message_end"}`,
		)
	})

	client, err := dify.New(srv.URL, "app-key")
	gt.NoError(t, err)

	chunks := collect(client.Interpret(context.Background(), threeCardRequest(t)))
	last := assertOneTerminal(t, chunks)
	gt.False(t, last.Final)
	gt.Error(t, last.Err)
	gt.True(t, errors.Is(last.Err, model.ErrService))
	gt.Equal(t, model.Describe(last.Err), "API Error: model overloaded")
	gt.Equal(t, last.Text, "partial")

	for _, c := range chunks {
		gt.False(t, c.Final)
	}
}

func TestInterpretStreamingClosedEarly(t *testing.T) {
	srv := newServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"event": "message", "answer": "half"}`)
	})

	client, err := dify.New(srv.URL, "app-key")
	gt.NoError(t, err)

	last := assertOneTerminal(t, collect(client.Interpret(context.Background(), threeCardRequest(t))))
	gt.True(t, errors.Is(last.Err, model.ErrTransport))
}

func TestInterpretStreamingEmptyAnswer(t *testing.T) {
	srv := newServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"event": "message_end"}`)
	})

	client, err := dify.New(srv.URL, "app-key")
	gt.NoError(t, err)

	last := assertOneTerminal(t, collect(client.Interpret(context.Background(), threeCardRequest(t))))
	gt.True(t, errors.Is(last.Err, model.ErrService))
	gt.Equal(t, model.Describe(last.Err), "API Error: No answer received from API")
}

func TestInterpretErrorStatus(t *testing.T) {
	srv := newServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code": "unauthorized", "message": "Access token is invalid", "status": 401}`))
	})

	for _, mode := range []dify.Mode{dify.ModeBlocking, dify.ModeStreaming} {
		t.Run(string(mode), func(t *testing.T) {
			client, err := dify.New(srv.URL, "bad-key", dify.WithMode(mode))
			gt.NoError(t, err)

			last := assertOneTerminal(t, collect(client.Interpret(context.Background(), threeCardRequest(t))))
			gt.True(t, errors.Is(last.Err, model.ErrService))
			gt.Equal(t, model.Describe(last.Err), "API Error: Access token is invalid")

			var svcErr *model.ServiceError
			gt.True(t, errors.As(last.Err, &svcErr))
			gt.Equal(t, svcErr.Status, http.StatusUnauthorized)
		})
	}
}

func TestInterpretErrorStatusWithoutBody(t *testing.T) {
	srv := newServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client, err := dify.New(srv.URL, "app-key", dify.WithMode(dify.ModeBlocking))
	gt.NoError(t, err)

	last := assertOneTerminal(t, collect(client.Interpret(context.Background(), threeCardRequest(t))))
	gt.Equal(t, model.Describe(last.Err), "API Error: Bad Gateway")
}

func TestInterpretBlockingEmptyAnswer(t *testing.T) {
	srv := newServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer": ""}`))
	})

	client, err := dify.New(srv.URL, "app-key", dify.WithMode(dify.ModeBlocking))
	gt.NoError(t, err)

	last := assertOneTerminal(t, collect(client.Interpret(context.Background(), threeCardRequest(t))))
	gt.True(t, errors.Is(last.Err, model.ErrService))
}

func TestInterpretNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := dify.New(url, "app-key")
	gt.NoError(t, err)

	last := assertOneTerminal(t, collect(client.Interpret(context.Background(), threeCardRequest(t))))
	gt.True(t, errors.Is(last.Err, model.ErrTransport))
	gt.False(t, errors.Is(last.Err, model.ErrTimeout))
	gt.Equal(t, model.Describe(last.Err), "Network error: Unable to reach AI service")
}

func TestInterpretTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"event\": \"message\", \"answer\": \"slow\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client, err := dify.New(srv.URL, "app-key", dify.WithTimeout(100*time.Millisecond))
	gt.NoError(t, err)

	chunks := collect(client.Interpret(context.Background(), threeCardRequest(t)))
	last := assertOneTerminal(t, chunks)
	gt.True(t, errors.Is(last.Err, model.ErrTimeout))
	gt.True(t, errors.Is(last.Err, model.ErrTransport))
	gt.Equal(t, chunks[0].Text, "slow")
}

func TestInterpretCanceled(t *testing.T) {
	srv := newServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	client, err := dify.New(srv.URL, "app-key")
	gt.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := client.Interpret(ctx, threeCardRequest(t))
	cancel()

	// the terminal chunk races with cancellation and may be dropped
	chunks := collect(ch)
	for i, c := range chunks {
		gt.False(t, c.Final)
		if c.Err != nil {
			gt.Equal(t, i, len(chunks)-1)
			gt.True(t, errors.Is(c.Err, context.Canceled))
		}
	}
}

func TestInterpretAbandonedConsumer(t *testing.T) {
	srv := newServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"event":"message","answer":"The "}`,
			`{"event":"message","answer":"Star"}`,
			`{"event":"message_end"}`,
		)
	})

	client, err := dify.New(srv.URL, "app-key")
	gt.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := client.Interpret(ctx, threeCardRequest(t))

	// take one chunk, then stop reading and cancel
	<-ch
	cancel()
	time.Sleep(200 * time.Millisecond)

	_, ok := <-ch
	gt.False(t, ok)
}

func TestInterpretFormatError(t *testing.T) {
	client, err := dify.New("http://127.0.0.1:1", "app-key")
	gt.NoError(t, err)

	last := assertOneTerminal(t, collect(client.Interpret(context.Background(), &model.InterpretationRequest{
		SpreadType: model.SpreadThree,
	})))
	gt.True(t, model.IsFormatError(last.Err))
}

func TestNewValidation(t *testing.T) {
	_, err := dify.New("", "key")
	gt.Error(t, err)

	_, err = dify.New("http://localhost", "")
	gt.Error(t, err)

	_, err = dify.New("http://localhost", "key", dify.WithMode("push"))
	gt.Error(t, err)
}

func TestTestConnection(t *testing.T) {
	var captured capturedRequest
	srv := newServer(t, &captured, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer": "Hi there"}`))
	})

	client, err := dify.New(srv.URL, "app-key")
	gt.NoError(t, err)
	gt.NoError(t, client.TestConnection(context.Background()))

	gt.Equal(t, captured.Payload["query"], any("Hello"))
	gt.Equal(t, captured.Payload["user"], any("test-user"))
	gt.Equal(t, captured.Payload["response_mode"], any("blocking"))
}

func TestParameters(t *testing.T) {
	var captured capturedRequest
	srv := newServer(t, &captured, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"opening_statement": "Welcome, seeker", "suggested_questions": []}`))
	})

	client, err := dify.New(srv.URL, "app-key")
	gt.NoError(t, err)

	params, err := client.Parameters(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, params["opening_statement"], any("Welcome, seeker"))
	gt.Equal(t, captured.Path, "/parameters")
	gt.Equal(t, captured.Auth, "Bearer app-key")
}
