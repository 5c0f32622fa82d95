// Package orchestrator drives a build session through its fixed phase
// sequence, enforcing the pre-flight gate, the per-phase cancellation
// checkpoints and the final registry handoff.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/cleanup"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/phase"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/preflight"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/session"
)

type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeValidationFailed
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) ToString() string {
	switch o {
	case OutcomeSucceeded:
		return "SUCCEEDED"
	case OutcomeValidationFailed:
		return "VALIDATION_FAILED"
	case OutcomeCancelled:
		return "CANCELLED"
	case OutcomeFailed:
		return "FAILED"
	}
	return "INVALID"
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.ToString())
}

// Orchestrator runs the build phases in order against one session.
// Preflight may be nil, in which case the validation gate is skipped
// (the cleanup subcommand reuses the orchestrator this way).
type Orchestrator struct {
	Session   *session.BuildSession
	Preflight *preflight.Runner
	Phases    []phase.Body
	Logger    *logrus.Entry
}

// Run executes the pre-flight gate and then each phase body in sequence,
// checking for cancellation before every body. No build resource is
// acquired before validation passes. On success the registry is cleared
// rather than drained: the created artifacts are the product, not debris.
func (o *Orchestrator) Run(ctx context.Context) (Outcome, error) {
	sess := o.Session
	log := o.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("session", sess.ID)

	if o.Preflight != nil {
		if CheckCancellation(sess, "pre-flight validation") {
			return OutcomeCancelled, nil
		}
		sess.Sink.PhaseStarted("pre-flight validation")
		summary := o.Preflight.Run(ctx)
		if !summary.Valid() {
			for _, result := range summary.Failed() {
				log.WithField("check", result.CheckName).Error(result.Message)
			}
			err := fmt.Errorf("%d pre-flight check(s) failed", len(summary.Failed()))
			sess.Sink.Error("pre-flight validation", err)
			return OutcomeValidationFailed, err
		}
		sess.Sink.PhaseCompleted("pre-flight validation")
		sess.LogCompleted("pre-flight validation")
	}

	for _, body := range o.Phases {
		name := body.Name()
		if CheckCancellation(sess, name) {
			return OutcomeCancelled, nil
		}

		log.WithField("phase", name).Info("Starting phase")
		sess.Sink.PhaseStarted(name)
		if err := body.Run(ctx, sess); err != nil {
			log.WithField("phase", name).WithError(err).Error("Phase failed")
			sess.Sink.Error(name, err)
			summary := sess.Registry.DrainAndRelease()
			logDrainSummary(sess, summary)
			return OutcomeFailed, fmt.Errorf("phase %q: %w", name, err)
		}
		sess.Sink.PhaseCompleted(name)
		sess.LogCompleted(name)
	}

	if CheckCancellation(sess, "finalize") {
		return OutcomeCancelled, nil
	}

	// The surviving registrations are the build outputs. Discard them
	// from the registry so a later drain cannot destroy the product.
	sess.Registry.Clear()
	log.Info("Build completed")
	return OutcomeSucceeded, nil
}

func logDrainSummary(sess *session.BuildSession, summary cleanup.DrainSummary) {
	entry := logrus.WithFields(logrus.Fields{
		"session":  sess.ID,
		"released": summary.Released,
	})
	if summary.AllReleased() {
		entry.Info("All registered resources released")
		return
	}
	for _, failure := range summary.Failed {
		entry.WithFields(logrus.Fields{
			"resource": failure.Handle,
			"kind":     failure.Kind.ToString(),
		}).WithError(failure.Err).Warn("Resource release failed")
	}
}
