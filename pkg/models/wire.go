package models

import "encoding/json"

// AttributeValue is the tagged-union encoding used by the executions table.
// Exactly one arm is expected to be set; a field of an unexpected shape
// decodes with every arm nil.
type AttributeValue struct {
	S    *string                   `json:"S,omitempty"`
	N    *string                   `json:"N,omitempty"`
	BOOL *bool                     `json:"BOOL,omitempty"`
	M    map[string]AttributeValue `json:"M,omitempty"`
}

// UnmarshalJSON decodes the arms it recognises and ignores the rest. A value
// that is not an object, or an arm of the wrong JSON type, leaves the arm
// nil instead of failing the whole item.
func (a *AttributeValue) UnmarshalJSON(data []byte) error {
	*a = AttributeValue{}
	var arms map[string]json.RawMessage
	if err := json.Unmarshal(data, &arms); err != nil {
		return nil
	}
	for key, raw := range arms {
		switch key {
		case "S":
			var s string
			if json.Unmarshal(raw, &s) == nil {
				a.S = &s
			}
		case "N":
			var n string
			if json.Unmarshal(raw, &n) == nil {
				a.N = &n
				continue
			}
			var num json.Number
			if json.Unmarshal(raw, &num) == nil {
				n = num.String()
				a.N = &n
			}
		case "BOOL":
			var b bool
			if json.Unmarshal(raw, &b) == nil {
				a.BOOL = &b
			}
		case "M":
			var m map[string]AttributeValue
			if json.Unmarshal(raw, &m) == nil {
				a.M = m
			}
		}
	}
	return nil
}

// Wire attribute names of the executions table.
const (
	AttrExecID              = "exec-id"
	AttrChildExecID         = "child-exec-id"
	AttrData                = "data"
	AttrRequestURL          = "request-url"
	AttrStatus              = "status"
	AttrTotalItemsProcessed = "total-items-processed"
	AttrIterationNo         = "iteration-no"
	AttrItemsInCurrentPage  = "items-in-current-page"
	AttrResponseStatus      = "response-status"
	AttrPaginationType      = "pagination-type"
	AttrTimestamp           = "timestamp"
	AttrIsLast              = "is-last"
)

// WireRecord is an executions table item before normalization.
type WireRecord struct {
	ExecID      AttributeValue `json:"exec-id"`
	ChildExecID AttributeValue `json:"child-exec-id"`
	Data        AttributeValue `json:"data"`
}

// StringAttr returns an S attribute holding v.
func StringAttr(v string) AttributeValue { return AttributeValue{S: &v} }

// NumberAttr returns an N attribute holding v verbatim.
func NumberAttr(v string) AttributeValue { return AttributeValue{N: &v} }

// BoolAttr returns a BOOL attribute.
func BoolAttr(v bool) AttributeValue { return AttributeValue{BOOL: &v} }
