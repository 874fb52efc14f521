package mcp_test

import (
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/repository"
	"github.com/m-mizutani/arcana/pkg/service/mcp"
	"github.com/m-mizutani/arcana/pkg/usecase/history"
	"github.com/m-mizutani/arcana/pkg/usecase/reading"
	"github.com/m-mizutani/gt"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type mockInterpreter struct {
	err error
}

func (m *mockInterpreter) Interpret(ctx context.Context, req *model.InterpretationRequest) <-chan model.Chunk {
	ch := make(chan model.Chunk, 1)
	if m.err != nil {
		ch <- model.Chunk{Err: m.err}
	} else {
		ch <- model.Chunk{Text: "A new path opens.", Final: true}
	}
	close(ch)
	return ch
}

func connect(t *testing.T, interpreter reading.Interpreter) (*mcpsdk.ClientSession, *repository.Memory) {
	t.Helper()
	repo := repository.NewMemory()
	ctrl := reading.New(interpreter, repo)
	uc := history.New(repo, history.WithOutput(io.Discard))
	srv := mcp.New(ctrl, uc, mcp.WithRNG(rand.New(rand.NewPCG(3, 5))))

	testServer := httptest.NewServer(srv.HTTPHandler())
	t.Cleanup(testServer.Close)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(context.Background(), &mcpsdk.StreamableClientTransport{
		Endpoint: testServer.URL,
	}, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session, repo
}

func resultText(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()
	gt.A(t, result.Content).Length(1)
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	return text.Text
}

func TestListTools(t *testing.T) {
	session, _ := connect(t, &mockInterpreter{})

	tools, err := session.ListTools(context.Background(), nil)
	gt.NoError(t, err)
	gt.A(t, tools.Tools).Length(2)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	gt.A(t, names).Has("draw_reading")
	gt.A(t, names).Has("list_readings")
}

func TestDrawAndListReadings(t *testing.T) {
	ctx := context.Background()
	session, repo := connect(t, &mockInterpreter{})

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "draw_reading",
		Arguments: map[string]any{"spread": "three", "question": "Where am I heading?"},
	})
	gt.NoError(t, err)
	gt.False(t, result.IsError)

	text := resultText(t, result)
	gt.S(t, text).Contains("Three Card Spread (Past, Present, Future)")
	gt.S(t, text).Contains("- Past: ")
	gt.S(t, text).Contains("A new path opens.")

	n, err := repo.CountReadings(ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 1)

	result, err = session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "list_readings",
		Arguments: map[string]any{"limit": 5},
	})
	gt.NoError(t, err)

	var readings []*model.Reading
	gt.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &readings))
	gt.A(t, readings).Length(1)
	gt.Equal(t, readings[0].Interpretation, "A new path opens.")
}

func TestDrawReadingFailure(t *testing.T) {
	ctx := context.Background()
	session, repo := connect(t, &mockInterpreter{
		err: &model.ServiceError{Status: 401, Message: "Access token is invalid"},
	})

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "draw_reading",
		Arguments: map[string]any{"spread": "single"},
	})
	gt.NoError(t, err)
	gt.True(t, result.IsError)
	gt.Equal(t, resultText(t, result), "API Error: Access token is invalid")

	n, err := repo.CountReadings(ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 0)
}
