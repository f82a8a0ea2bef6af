package executor

import (
	"strings"

	"github.com/teranos/flowstate/errors"
)

// Status is the lifecycle state of an execution or job node.
// Numeric values are persisted; never renumber them.
type Status int

const (
	StatusReady           Status = 10
	StatusPreparing       Status = 20
	StatusRunning         Status = 30
	StatusPaused          Status = 40
	StatusSucceeded       Status = 50
	StatusKilled          Status = 60
	StatusFailed          Status = 70
	StatusFailedFinishing Status = 80
	StatusSkipped         Status = 90
	StatusDisabled        Status = 100
	StatusQueued          Status = 110
	StatusFailedSucceeded Status = 120
	StatusCancelled       Status = 130
)

var statusNames = map[Status]string{
	StatusReady:           "READY",
	StatusPreparing:       "PREPARING",
	StatusRunning:         "RUNNING",
	StatusPaused:          "PAUSED",
	StatusSucceeded:       "SUCCEEDED",
	StatusKilled:          "KILLED",
	StatusFailed:          "FAILED",
	StatusFailedFinishing: "FAILED_FINISHING",
	StatusSkipped:         "SKIPPED",
	StatusDisabled:        "DISABLED",
	StatusQueued:          "QUEUED",
	StatusFailedSucceeded: "FAILED_SUCCEEDED",
	StatusCancelled:       "CANCELLED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsTerminal reports whether no further status writes are expected.
// The store does not enforce this; the orchestrator does.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusKilled, StatusFailedSucceeded,
		StatusSkipped, StatusDisabled, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus accepts a status name in any case, e.g. "running".
func ParseStatus(s string) (Status, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for st, name := range statusNames {
		if name == want {
			return st, nil
		}
	}
	return 0, errors.NewInvalidRequestError("unknown status %q", s)
}

// statusFromInt converts a persisted value, rejecting numbers outside the enum.
func statusFromInt(v int) (Status, error) {
	st := Status(v)
	if _, ok := statusNames[st]; !ok {
		return 0, errors.Newf("unknown status value %d", v)
	}
	return st, nil
}

// MarshalText writes the status name so payloads and CLI output stay readable.
// The zero value marshals as an empty string.
func (s Status) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	if _, ok := statusNames[s]; !ok {
		return nil, errors.Newf("cannot marshal unknown status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = 0
		return nil
	}
	st, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
