package server

import "github.com/m-mizutani/arcana/pkg/model"

// CreateReadingRequest is the body of POST /v1/readings
type CreateReadingRequest struct {
	Spread   string `json:"spread"`
	Question string `json:"question"`
}

// CreateReadingResponse is returned when a generation has been started
type CreateReadingResponse struct {
	Spread    model.SpreadType  `json:"spread"`
	Cards     []model.DrawnCard `json:"cards"`
	RequestID string            `json:"request_id"`
}

type HistoryResponse struct {
	Readings []*model.Reading `json:"readings"`
	Total    int              `json:"total"`
	Offset   int              `json:"offset"`
	Limit    int              `json:"limit"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
