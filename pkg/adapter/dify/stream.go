package dify

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

type EventKind string

const (
	EventMessage      EventKind = "message"
	EventAgentMessage EventKind = "agent_message"
	EventMessageEnd   EventKind = "message_end"
	EventError        EventKind = "error"
)

// Event is one decoded frame of a chat-messages stream. Only the kinds above
// are ever returned by Decoder.
type Event struct {
	Kind           EventKind
	Answer         string
	Message        string
	Code           string
	Status         int
	ConversationID string
	MessageID      string
}

// IsText reports whether the event carries cumulative answer text
func (e *Event) IsText() bool {
	return e.Kind == EventMessage || e.Kind == EventAgentMessage
}

type eventPayload struct {
	Event          string `json:"event"`
	Answer         string `json:"answer"`
	Message        string `json:"message"`
	Code           string `json:"code"`
	Status         int    `json:"status"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// Decoder reads newline-delimited event-stream frames. A frame split across
// reads is buffered until its line is complete.
type Decoder struct {
	r      *bufio.Reader
	logger *slog.Logger
}

func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Decoder{
		r:      bufio.NewReader(r),
		logger: logger,
	}
}

// Next returns the next recognized event. Malformed and unknown frames are
// logged and skipped. io.EOF is returned when the stream ends.
func (d *Decoder) Next() (*Event, error) {
	for {
		line, readErr := d.r.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, goerr.Wrap(readErr, "failed to read event stream")
		}

		if ev := d.parseLine(line); ev != nil {
			return ev, nil
		}

		if readErr != nil {
			return nil, io.EOF
		}
	}
}

func (d *Decoder) parseLine(line string) *Event {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || strings.HasPrefix(line, ":") {
		return nil
	}

	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		// event:, id: and retry: fields carry nothing the payload lacks
		return nil
	}
	data = strings.TrimSpace(data)
	if data == "" {
		return nil
	}

	var payload eventPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		d.logger.Warn("skip malformed stream frame", "error", err, "frame", truncate(data, 200))
		return nil
	}

	switch kind := EventKind(payload.Event); kind {
	case EventMessage, EventAgentMessage, EventMessageEnd, EventError:
		return &Event{
			Kind:           kind,
			Answer:         payload.Answer,
			Message:        payload.Message,
			Code:           payload.Code,
			Status:         payload.Status,
			ConversationID: payload.ConversationID,
			MessageID:      payload.MessageID,
		}
	default:
		d.logger.Debug("skip unknown stream event", "event", payload.Event)
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
