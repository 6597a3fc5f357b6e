package models

import "strings"

type ExecutionStatus string

const (
	InProgressExecutionStatus ExecutionStatus = "in-progress"
	CompletedExecutionStatus  ExecutionStatus = "completed"
	ErrorExecutionStatus      ExecutionStatus = "error"
)

// ParseExecutionStatus maps both the tag form ("in-progress") and the
// display form ("In Progress") to the canonical tag. An empty value means
// the execution is still running. Unknown values are lowercased and kept.
func ParseExecutionStatus(raw string) ExecutionStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return InProgressExecutionStatus
	}
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	}), "-")
	return ExecutionStatus(s)
}

// IsTerminal reports whether no further records are expected.
func (s ExecutionStatus) IsTerminal() bool {
	return s == CompletedExecutionStatus || s == ErrorExecutionStatus
}

// Display returns the human readable label shown to users.
func (s ExecutionStatus) Display() string {
	switch s {
	case "", InProgressExecutionStatus:
		return "In Progress"
	case CompletedExecutionStatus:
		return "Completed"
	case ErrorExecutionStatus:
		return "Error"
	default:
		words := strings.Split(string(s), "-")
		for i, w := range words {
			if w != "" {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
		return strings.Join(words, " ")
	}
}
