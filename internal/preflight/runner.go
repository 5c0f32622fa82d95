package preflight

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Summary aggregates the results of one runner pass.
type Summary struct {
	Results []CheckResult
}

// Valid reports whether the pipeline may start: false iff at least one
// check reported Failed. Warnings never block.
func (s Summary) Valid() bool {
	for _, result := range s.Results {
		if result.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Failed returns all results with Failed status.
func (s Summary) Failed() []CheckResult {
	var failed []CheckResult
	for _, result := range s.Results {
		if result.Status == StatusFailed {
			failed = append(failed, result)
		}
	}
	return failed
}

// Warnings returns all results with Warning status.
func (s Summary) Warnings() []CheckResult {
	var warnings []CheckResult
	for _, result := range s.Results {
		if result.Status == StatusWarning {
			warnings = append(warnings, result)
		}
	}
	return warnings
}

// Runner executes a set of preflight checks and aggregates their results.
type Runner struct {
	Checks []Check

	// AttemptRemediation lets checks implementing Remediator try to fix
	// a failed condition before their status is re-probed.
	AttemptRemediation bool

	Logger *logrus.Logger
}

func (r *Runner) logger() *logrus.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logrus.StandardLogger()
}

// Run executes every registered check. Checks are independent and
// side-effect-free, so they run concurrently.
func (r *Runner) Run(ctx context.Context) Summary {
	results := make([]CheckResult, len(r.Checks))

	g, ctx := errgroup.WithContext(ctx)
	for i, check := range r.Checks {
		g.Go(func() error {
			results[i] = r.runCheck(ctx, check)
			return nil
		})
	}
	// the group collects no errors, every outcome lives in its CheckResult
	_ = g.Wait()

	for _, result := range results {
		entry := r.logger().WithFields(logrus.Fields{
			"check":    result.CheckName,
			"status":   result.Status.ToString(),
			"duration": result.Duration,
		})
		switch result.Status {
		case StatusFailed:
			entry.Errorf("Preflight check failed: %s", result.Message)
		case StatusWarning:
			entry.Warnf("Preflight check warning: %s", result.Message)
		default:
			entry.Info(result.Message)
		}
	}

	return Summary{Results: results}
}

func (r *Runner) runCheck(ctx context.Context, check Check) CheckResult {
	start := time.Now()
	result := check.Run(ctx)

	if result.Status == StatusFailed && r.AttemptRemediation {
		if remediator, ok := check.(Remediator); ok {
			remediationErr := remediator.Remediate(ctx)

			// re-probe: the fresh condition dictates the status, not the
			// attempt's outcome
			result = check.Run(ctx)
			if result.Details == nil {
				result.Details = map[string]string{}
			}
			result.Details["remediation_attempted"] = "true"
			result.Details["remediation_succeeded"] = strconv.FormatBool(remediationErr == nil)
		}
	}

	result.CheckName = check.Name()
	result.Duration = time.Since(start)
	return result
}
