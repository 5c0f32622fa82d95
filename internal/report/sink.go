// Package report carries pipeline progress events to the operator-facing
// session log. The transport is deliberately narrow: the orchestrator emits
// events, the sink decides where they go.
package report

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Mode selects how the session log file is opened.
type Mode int

const (
	// Fresh truncates any previous session log. Used for new builds.
	Fresh Mode = iota
	// Append keeps the previous session log. Used for cleanup-only
	// re-invocations so the original build record survives.
	Append
)

// Sink receives progress events from the orchestrator.
type Sink interface {
	PhaseStarted(phase string)
	PhaseCompleted(phase string)
	PhaseSkipped(phase, reason string)
	CheckpointTriggered(phase string)
	Error(phase string, err error)
	Close() error
}

// LogSink writes progress events through a dedicated logrus logger into
// the session log file.
type LogSink struct {
	logger *logrus.Logger
	file   *os.File
}

// NewLogSink opens the session log at path according to mode and returns
// a sink writing into it.
func NewLogSink(path string, mode Mode) (*LogSink, error) {
	flags := os.O_WRONLY | os.O_CREATE
	switch mode {
	case Fresh:
		flags |= os.O_TRUNC
	case Append:
		flags |= os.O_APPEND
	default:
		return nil, fmt.Errorf("unknown session log mode: %d", mode)
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open session log %s: %w", path, err)
	}

	logger := logrus.New()
	logger.SetOutput(file)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &LogSink{
		logger: logger,
		file:   file,
	}, nil
}

func (s *LogSink) PhaseStarted(phase string) {
	s.logger.WithField("phase", phase).Info("Phase started")
}

func (s *LogSink) PhaseCompleted(phase string) {
	s.logger.WithField("phase", phase).Info("Phase completed")
}

func (s *LogSink) PhaseSkipped(phase, reason string) {
	s.logger.WithFields(logrus.Fields{
		"phase":  phase,
		"reason": reason,
	}).Info("Phase skipped by configuration")
}

func (s *LogSink) CheckpointTriggered(phase string) {
	s.logger.WithField("phase", phase).Warn("Cancellation requested, stopping at checkpoint")
}

func (s *LogSink) Error(phase string, err error) {
	s.logger.WithField("phase", phase).Errorf("Phase failed: %v", err)
}

func (s *LogSink) Close() error {
	return s.file.Close()
}

// NullSink discards all events.
type NullSink struct{}

func (NullSink) PhaseStarted(string)         {}
func (NullSink) PhaseCompleted(string)       {}
func (NullSink) PhaseSkipped(string, string) {}
func (NullSink) CheckpointTriggered(string)  {}
func (NullSink) Error(string, error)         {}
func (NullSink) Close() error                { return nil }
