package models

// ExecutionLogRecord is one normalized log entry written by an execution.
// The root entry of an execution has ChildExecutionID == ExecutionID; every
// other entry describes one iteration (page) of that execution.
type ExecutionLogRecord struct {
	ExecutionID         string          `json:"executionId"`         // Parent execution
	ChildExecutionID    string          `json:"childExecutionId"`    // Equals ExecutionID on the root entry
	IterationNumber     int             `json:"iterationNumber"`     // Ordering key among children
	ItemsInCurrentPage  int             `json:"itemsInCurrentPage"`  // Items fetched by this iteration
	TotalItemsProcessed int             `json:"totalItemsProcessed"` // Running total
	RequestURL          string          `json:"requestUrl"`          // External URL invoked at this step
	ResponseStatus      int             `json:"responseStatus"`      // HTTP-like status code
	PaginationType      string          `json:"paginationType"`      // Pagination strategy tag
	Timestamp           string          `json:"timestamp"`           // ISO-8601, kept verbatim
	Status              ExecutionStatus `json:"status"`              // Canonical status tag
	IsLast              bool            `json:"isLast"`              // Final page/iteration
}

// IsParent reports whether the record is the root entry of its execution.
func (r ExecutionLogRecord) IsParent() bool {
	return r.ChildExecutionID == r.ExecutionID
}

// ExecutionGroup is a root record with its iteration records, derived from a
// flat record set. Parent is nil when only children have been seen.
type ExecutionGroup struct {
	Parent   *ExecutionLogRecord  `json:"parent"`
	Children []ExecutionLogRecord `json:"children"`
}
