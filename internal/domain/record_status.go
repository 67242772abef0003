package domain

import "fmt"

// RecordStatus represents the download state of a single ledger record.
type RecordStatus int

const (
	StatusMissing RecordStatus = iota
	StatusInProgress
	StatusDone
)

// String returns the form written to the ledger file.
func (s RecordStatus) String() string {
	switch s {
	case StatusMissing:
		return "missing"
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("RecordStatus(%d)", int(s))
	}
}

// ParseRecordStatus converts a ledger "progress" value back into a RecordStatus.
func ParseRecordStatus(s string) (RecordStatus, error) {
	switch s {
	case "missing":
		return StatusMissing, nil
	case "in_progress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	default:
		return 0, fmt.Errorf("unknown record status %q", s)
	}
}

// CanTransition reports whether moving from s to next is legal.
// Done is terminal; InProgress -> Missing only happens when a ledger is loaded.
func (s RecordStatus) CanTransition(next RecordStatus) bool {
	switch s {
	case StatusMissing:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusDone || next == StatusMissing
	default:
		return false
	}
}

// MarshalText lets the status render as its ledger form in JSON responses.
func (s RecordStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *RecordStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseRecordStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
