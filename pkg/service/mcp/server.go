package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/arcana/pkg/deck"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/usecase/history"
	"github.com/m-mizutani/arcana/pkg/usecase/reading"
	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "arcana"
	serverVersion = "0.1.0"

	defaultListLimit = 10
)

// Server exposes tarot readings as MCP tools
type Server struct {
	server  *mcp.Server
	ctrl    *reading.Controller
	history *history.UseCase
	rng     deck.RNG
}

type Option func(*Server)

// WithRNG sets the random source used to draw cards
func WithRNG(rng deck.RNG) Option {
	return func(s *Server) {
		s.rng = rng
	}
}

type drawReadingParams struct {
	Spread   string `json:"spread"`
	Question string `json:"question,omitempty"`
}

type listReadingsParams struct {
	Limit int `json:"limit,omitempty"`
}

func drawReadingSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"spread": {
				Type:        "string",
				Description: "single draws one card, three draws Past, Present and Future",
				Enum:        []any{string(model.SpreadSingle), string(model.SpreadThree)},
			},
			"question": {
				Type:        "string",
				Description: "Optional question of the querent",
			},
		},
		Required: []string{"spread"},
	}
}

func listReadingsSchema() *jsonschema.Schema {
	minimum, maximum := 1.0, 100.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"limit": {
				Type:        "integer",
				Description: "Number of most recent readings to return (default 10)",
				Minimum:     &minimum,
				Maximum:     &maximum,
			},
		},
	}
}

// New creates a MCP server with draw_reading and list_readings tools
func New(ctrl *reading.Controller, uc *history.UseCase, opts ...Option) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
		ctrl:    ctrl,
		history: uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "draw_reading",
		Description: "Draw tarot cards for a spread and interpret them. The reading is saved to history.",
		InputSchema: drawReadingSchema(),
	}, s.drawReading)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_readings",
		Description: "List saved tarot readings, newest first",
		InputSchema: listReadingsSchema(),
	}, s.listReadings)

	return s
}

// Run serves over stdio until ctx is canceled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

// HTTPHandler serves the same tools over streamable HTTP
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: isError,
	}
}

func (s *Server) drawReading(ctx context.Context, req *mcp.CallToolRequest, params *drawReadingParams) (*mcp.CallToolResult, any, error) {
	spread := model.SpreadType(params.Spread)
	cards, err := deck.DrawSpread(spread, s.rng)
	if err != nil {
		return textResult(err.Error(), true), nil, nil
	}

	r, err := s.ctrl.Generate(ctx, spread, cards, params.Question)
	if r == nil {
		logging.From(ctx).Error("draw_reading failed", "error", err)
		return textResult(model.Describe(err), true), nil, nil
	}
	if err != nil {
		// the reading is complete but could not be saved
		logging.From(ctx).Warn("reading not saved", "error", err)
	}

	return textResult(renderReading(r), false), nil, nil
}

func (s *Server) listReadings(ctx context.Context, req *mcp.CallToolRequest, params *listReadingsParams) (*mcp.CallToolResult, any, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	readings, err := s.history.List(ctx, 0, limit)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to list readings")
	}

	data, err := json.MarshalIndent(readings, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal readings")
	}
	return textResult(string(data), false), nil, nil
}

func renderReading(r *model.Reading) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", r.SpreadType.Label(), r.DateFormatted)
	for _, c := range r.Cards {
		label := model.PositionSingle.Label()
		if c.Position != "" {
			label = c.Position.Label()
		}
		fmt.Fprintf(&b, "- %s: %s\n", label, c.Card.Name)
	}
	fmt.Fprintf(&b, "\n%s\n\nReading ID: %s", r.Interpretation, r.ID)
	return b.String()
}
