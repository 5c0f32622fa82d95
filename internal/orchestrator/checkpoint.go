package orchestrator

import (
	"github.com/sirupsen/logrus"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/session"
)

// CheckCancellation is the cancellation checkpoint placed at every phase
// boundary. It returns true when the caller must stop. Cancellation is
// cooperative polling: the phases wrap long-running external processes
// that cannot be safely interrupted mid-operation, so a request is only
// honored here, where no external tool holds a lock.
//
// On a pending request the checkpoint logs the phase, drains the session's
// cleanup registry and returns true. It never returns an error; its side
// effects are observable only through the log and the released resources.
func CheckCancellation(sess *session.BuildSession, phaseName string) bool {
	if !sess.CancelRequested() {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"session": sess.ID,
		"phase":   phaseName,
	}).Warn("Cancellation requested, stopping before phase")
	sess.Sink.CheckpointTriggered(phaseName)
	sess.MarkCancelled()

	summary := sess.Registry.DrainAndRelease()
	logDrainSummary(sess, summary)

	return true
}
