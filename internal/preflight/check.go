// Package preflight validates the build host before the pipeline starts.
// Checks are independent, side-effect-free probes; the runner executes the
// registered set and aggregates the results into a single go/no-go answer.
package preflight

import (
	"context"
	"encoding/json"
	"time"
)

func checkStatusMapping() []string {
	return []string{"PASSED", "FAILED", "WARNING", "SKIPPED"}
}

// CheckStatus classifies one check's outcome. Failed is the only status
// that blocks pipeline entry; Warning is surfaced to the operator but
// never blocks.
type CheckStatus int

const (
	StatusPassed CheckStatus = iota
	StatusFailed
	StatusWarning
	StatusSkipped
)

// ToString converts CheckStatus into a human readable string
func (cs CheckStatus) ToString() string {
	return checkStatusMapping()[int(cs)]
}

func (cs CheckStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(checkStatusMapping()[cs])
}

// UnmarshalJSON converts a JSON string into a CheckStatus
func (cs *CheckStatus) UnmarshalJSON(data []byte) error {
	var stringInput string
	if err := json.Unmarshal(data, &stringInput); err != nil {
		return err
	}
	for n, str := range checkStatusMapping() {
		if str == stringInput {
			*cs = CheckStatus(n)
			return nil
		}
	}
	return &invalidStatusError{stringInput}
}

type invalidStatusError struct {
	status string
}

func (e *invalidStatusError) Error() string {
	return "invalid check status: " + e.status
}

// CheckResult is the shape every check produces. The runner only requires
// this shape, not any check's internals.
type CheckResult struct {
	CheckName   string            `json:"check_name"`
	Status      CheckStatus       `json:"status"`
	Message     string            `json:"message"`
	Details     map[string]string `json:"details,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
	Duration    time.Duration     `json:"duration_ms"`
}

// Check is one pluggable preflight probe.
type Check interface {
	// Name returns the unique check name.
	Name() string

	// Run probes the host and reports the result. Run must not mutate
	// host state.
	Run(ctx context.Context) CheckResult
}

// Remediator is implemented by checks that can attempt to fix the condition
// they probe for. The runner only invokes Remediate when auto-remediation
// is enabled and the probe failed; the check's status is then re-evaluated
// with a fresh probe, never inferred from the attempt's outcome.
type Remediator interface {
	Remediate(ctx context.Context) error
}
