package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSeedsFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplID = "abc123"
	cfg.ReplOffset = 500
	s := New("127.0.0.1", 6379, cfg)
	assert.Equal(t, "abc123", s.ReplID())
	assert.EqualValues(t, 500, s.ReplOffset())
	assert.Equal(t, -1, s.CurrentDB())
	assert.Equal(t, StatusDisconnected, s.Status())
}

func TestAdvanceOffsetAccumulates(t *testing.T) {
	s := New("h", 1, DefaultConfig())
	s.AdvanceOffset(31)
	s.AdvanceOffset(14)
	assert.EqualValues(t, 45, s.ReplOffset())
}

func TestAdvanceOffsetRejectsNegative(t *testing.T) {
	s := New("h", 1, DefaultConfig())
	assert.Panics(t, func() { s.AdvanceOffset(-1) })
}

func TestEnterFullResyncResetsCurrentDB(t *testing.T) {
	s := New("h", 1, DefaultConfig())
	s.SetCurrentDB(3)
	s.EnterFullResync("newid", 100)
	assert.Equal(t, "newid", s.ReplID())
	assert.EqualValues(t, 100, s.ReplOffset())
	assert.Equal(t, -1, s.CurrentDB())
}

func TestAdoptContinueIDKeepsOldWhenEmpty(t *testing.T) {
	s := New("h", 1, DefaultConfig())
	s.EnterFullResync("orig", 0)
	s.AdoptContinueID("")
	assert.Equal(t, "orig", s.ReplID())
	s.AdoptContinueID("fresh")
	assert.Equal(t, "fresh", s.ReplID())
}

func TestDefaultConfigHasNoFilters(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.Filters)
}
