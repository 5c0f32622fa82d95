package session

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/cleanup"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/common"
)

func newTestSession() *BuildSession {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(cleanup.NewRegistry(logger), nil)
}

func TestCancelTransitions(t *testing.T) {
	s := newTestSession()

	assert.Equal(t, common.CancelRunning, s.CancelState())
	assert.False(t, s.CancelRequested())

	s.RequestCancel()
	assert.Equal(t, common.CancelRequested, s.CancelState())
	assert.True(t, s.CancelRequested())

	s.MarkCancelled()
	assert.Equal(t, common.CancelCancelled, s.CancelState())

	// a late signal must not resurrect the session
	s.RequestCancel()
	assert.Equal(t, common.CancelCancelled, s.CancelState())
}

func TestCompletedPhases(t *testing.T) {
	s := newTestSession()

	assert.Empty(t, s.CompletedPhases())

	s.LogCompleted("driver download")
	s.LogCompleted("vhdx creation")

	assert.Equal(t, []string{"driver download", "vhdx creation"}, s.CompletedPhases())

	// returned slice is a copy
	phases := s.CompletedPhases()
	phases[0] = "mutated"
	assert.Equal(t, []string{"driver download", "vhdx creation"}, s.CompletedPhases())
}

func TestSessionsHaveUniqueIDs(t *testing.T) {
	a := newTestSession()
	b := newTestSession()
	assert.NotEqual(t, a.ID, b.ID)
}
