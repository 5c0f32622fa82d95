package common

import (
	"encoding/json"
)

func cancelStateMapping() []string {
	return []string{"RUNNING", "CANCEL_REQUESTED", "CANCELLED"}
}

// CancelState tracks the cooperative cancellation protocol of a build
// session. The only legal transitions are Running -> CancelRequested
// (set by the interrupt listener) and CancelRequested -> Cancelled
// (set by the checkpoint that honored the request).
type CancelState int

const (
	CancelRunning CancelState = iota
	CancelRequested
	CancelCancelled
)

// CustomJsonConversionError is thrown when parsing strings into enumerations
type CustomJsonConversionError struct {
	reason string
}

// Error returns the error as a string
func (err *CustomJsonConversionError) Error() string {
	return err.reason
}

// ToString converts CancelState into a human readable string
func (cs CancelState) ToString() string {
	return cancelStateMapping()[int(cs)]
}

func unmarshalStateHelper(data []byte, mapping []string) (int, error) {
	var stringInput string
	err := json.Unmarshal(data, &stringInput)
	if err != nil {
		return 0, err
	}
	for n, str := range mapping {
		if str == stringInput {
			return n, nil
		}
	}
	return 0, &CustomJsonConversionError{"invalid cancel state: " + stringInput}
}

// UnmarshalJSON converts a JSON string into a CancelState
func (cs *CancelState) UnmarshalJSON(data []byte) error {
	val, err := unmarshalStateHelper(data, cancelStateMapping())
	if err != nil {
		return err
	}
	*cs = CancelState(val)
	return nil
}

func (cs CancelState) MarshalJSON() ([]byte, error) {
	return json.Marshal(cancelStateMapping()[cs])
}
