package model

import "github.com/m-mizutani/goerr/v2"

// InterpretationRequest is built once per generation attempt. An empty Query
// means the user asked no question.
type InterpretationRequest struct {
	SpreadType SpreadType
	Cards      []DrawnCard
	Query      string
}

// NewInterpretationRequest places cards on the spread and builds the request
func NewInterpretationRequest(spread SpreadType, cards []Card, query string) (*InterpretationRequest, error) {
	drawn, err := NewDrawnCards(spread, cards)
	if err != nil {
		return nil, err
	}
	return &InterpretationRequest{
		SpreadType: spread,
		Cards:      drawn,
		Query:      query,
	}, nil
}

// Validate rejects requests the prompt formatter cannot render
func (r *InterpretationRequest) Validate() error {
	if err := r.SpreadType.Validate(); err != nil {
		return err
	}
	if len(r.Cards) == 0 {
		return goerr.Wrap(ErrNoCards, "invalid interpretation request")
	}
	if len(r.Cards) != r.SpreadType.CardCount() {
		return goerr.Wrap(ErrCardCountMismatch, "invalid interpretation request",
			goerr.V("spread", r.SpreadType),
			goerr.V("cards", len(r.Cards)),
		)
	}
	return nil
}

// Chunk is one item of an interpretation stream. Text is always the full
// interpretation received so far. The last item of every stream has either
// Final set or Err set, never both.
type Chunk struct {
	Text  string
	Final bool
	Err   error
}

// IsTerminal reports whether no chunk follows this one
func (c Chunk) IsTerminal() bool {
	return c.Final || c.Err != nil
}

// SessionSnapshot is an immutable view of the reading session state
type SessionSnapshot struct {
	CurrentReading *Reading `json:"currentReading"`
	StreamingText  string   `json:"streamingText"`
	IsGenerating   bool     `json:"isGenerating"`
	Error          string   `json:"error,omitempty"`
	Generation     uint64   `json:"generation"`
}
