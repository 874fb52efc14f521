package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Memory keeps history in process memory
type Memory struct {
	mu       sync.RWMutex
	readings []*model.Reading
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func clone(r *model.Reading) *model.Reading {
	c := *r
	c.Cards = append([]model.ReadingCard(nil), r.Cards...)
	return &c
}

func (m *Memory) indexOf(id model.ReadingID) int {
	for i, r := range m.readings {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) PutReading(ctx context.Context, reading *model.Reading) error {
	if err := reading.Validate(); err != nil {
		return goerr.Wrap(err, "failed to put reading")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexOf(reading.ID); i >= 0 {
		m.readings = append(m.readings[:i], m.readings[i+1:]...)
	}

	m.readings = append([]*model.Reading{clone(reading)}, m.readings...)
	if len(m.readings) > MaxReadings {
		m.readings = m.readings[:MaxReadings]
	}
	return nil
}

func (m *Memory) GetReading(ctx context.Context, id model.ReadingID) (*model.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.indexOf(id)
	if i < 0 {
		return nil, goerr.Wrap(model.ErrReadingNotFound, "failed to get reading", goerr.V("id", id))
	}
	return clone(m.readings[i]), nil
}

func (m *Memory) ListReadings(ctx context.Context, offset, limit int) ([]*model.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(m.readings) {
		return []*model.Reading{}, nil
	}

	end := len(m.readings)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	result := make([]*model.Reading, 0, end-offset)
	for _, r := range m.readings[offset:end] {
		result = append(result, clone(r))
	}
	return result, nil
}

func (m *Memory) CountReadings(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings), nil
}

func (m *Memory) UpdateFavorite(ctx context.Context, id model.ReadingID, favorite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return goerr.Wrap(model.ErrReadingNotFound, "failed to update favorite", goerr.V("id", id))
	}
	updated := clone(m.readings[i])
	updated.Favorite = favorite
	m.readings[i] = updated
	return nil
}

func (m *Memory) ToggleFavorite(ctx context.Context, id model.ReadingID) (*model.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return nil, goerr.Wrap(model.ErrReadingNotFound, "failed to toggle favorite", goerr.V("id", id))
	}
	updated := clone(m.readings[i])
	updated.Favorite = !updated.Favorite
	m.readings[i] = updated
	return clone(updated), nil
}

func (m *Memory) DeleteReading(ctx context.Context, id model.ReadingID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return goerr.Wrap(model.ErrReadingNotFound, "failed to delete reading", goerr.V("id", id))
	}
	m.readings = append(m.readings[:i], m.readings[i+1:]...)
	return nil
}

func (m *Memory) ClearReadings(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = nil
	return nil
}
