package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/m-mizutani/arcana/pkg/deck"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/usecase/history"
	"github.com/m-mizutani/arcana/pkg/usecase/reading"
	"github.com/m-mizutani/arcana/pkg/utils/logging"
)

const (
	maxQuestionLength = 500
	defaultPageSize   = 20
)

type Handler struct {
	ctrl    *reading.Controller
	history *history.UseCase
	rng     deck.RNG

	// baseCtx outlives requests; background generations run on it
	baseCtx context.Context
	wg      sync.WaitGroup

	// closing ends open event streams on shutdown
	closing   chan struct{}
	closeOnce sync.Once
}

func NewHandler(ctrl *reading.Controller, uc *history.UseCase, rng deck.RNG) *Handler {
	return &Handler{
		ctrl:    ctrl,
		history: uc,
		rng:     rng,
		baseCtx: context.Background(),
		closing: make(chan struct{}),
	}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)

	v1 := e.Group("/v1")
	v1.POST("/readings", h.CreateReading)
	v1.GET("/session", h.GetSession)
	v1.GET("/session/events", h.SessionEvents)
	v1.GET("/history", h.ListHistory)
	v1.GET("/history/:id", h.GetHistory)
	v1.POST("/history/:id/favorite", h.ToggleFavorite)
	v1.DELETE("/history/:id", h.DeleteHistory)
}

// Close ends open event streams
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Wait blocks until background generations finish
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) CreateReading(c echo.Context) error {
	var req CreateReadingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if len(req.Question) > maxQuestionLength {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("question must be at most %d characters", maxQuestionLength)})
	}

	spread := model.SpreadType(req.Spread)
	if spread == "" {
		spread = model.SpreadThree
	}

	cards, err := deck.DrawSpread(spread, h.rng)
	if err != nil {
		return mapError(c, err)
	}
	drawn, err := model.NewDrawnCards(spread, cards)
	if err != nil {
		return mapError(c, err)
	}

	requestID, _ := c.Get("request_id").(string)
	ctx := logging.With(h.baseCtx, logging.From(c.Request().Context()))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		// failures are published on the session state
		_, _ = h.ctrl.Generate(ctx, spread, cards, req.Question)
	}()

	return c.JSON(http.StatusAccepted, CreateReadingResponse{
		Spread:    spread,
		Cards:     drawn,
		RequestID: requestID,
	})
}

func (h *Handler) GetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ctrl.State().Snapshot())
}

// SessionEvents streams session snapshots as server-sent events. Slow
// clients skip intermediate snapshots and always receive the latest one.
func (h *Handler) SessionEvents(c echo.Context) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	latest := make(chan model.SessionSnapshot, 1)
	push := func(snap model.SessionSnapshot) {
		select {
		case latest <- snap:
			return
		default:
		}
		select {
		case <-latest:
		default:
		}
		select {
		case latest <- snap:
		default:
		}
	}

	state := h.ctrl.State()
	unsubscribe := state.Subscribe(push)
	defer unsubscribe()
	push(state.Snapshot())

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.closing:
			return nil
		case snap := <-latest:
			data, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(resp, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

func (h *Handler) ListHistory(c echo.Context) error {
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "offset must be a non-negative integer"})
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit < 1 || limit > 100 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer between 1 and 100"})
	}

	ctx := c.Request().Context()
	readings, err := h.history.List(ctx, offset, limit)
	if err != nil {
		return mapError(c, err)
	}
	total, err := h.history.Count(ctx)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(http.StatusOK, HistoryResponse{
		Readings: readings,
		Total:    total,
		Offset:   offset,
		Limit:    limit,
	})
}

func (h *Handler) GetHistory(c echo.Context) error {
	r, err := h.history.Show(c.Request().Context(), model.ReadingID(c.Param("id")))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ToggleFavorite(c echo.Context) error {
	r, err := h.ctrl.ToggleFavorite(c.Request().Context(), model.ReadingID(c.Param("id")))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteHistory(c echo.Context) error {
	if err := h.history.Delete(c.Request().Context(), model.ReadingID(c.Param("id"))); err != nil {
		return mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func mapError(c echo.Context, err error) error {
	logger := logging.From(c.Request().Context())

	switch {
	case errors.Is(err, model.ErrReadingNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "reading not found"})
	case model.IsFormatError(err), errors.Is(err, deck.ErrInvalidCount):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		logger.Error("internal error", "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
