package service

import (
	"math"
	"strconv"
	"strings"

	"github.com/ignatij/exectrack/pkg/models"
)

// NormalizeRecord converts a wire record into an ExecutionLogRecord.
// Missing or mistyped fields default to "", 0 and false; a missing status
// means the execution is still in progress.
func NormalizeRecord(w models.WireRecord) models.ExecutionLogRecord {
	data := w.Data.M
	return models.ExecutionLogRecord{
		ExecutionID:         stringValue(w.ExecID),
		ChildExecutionID:    stringValue(w.ChildExecID),
		IterationNumber:     numberValue(data[models.AttrIterationNo]),
		ItemsInCurrentPage:  numberValue(data[models.AttrItemsInCurrentPage]),
		TotalItemsProcessed: numberValue(data[models.AttrTotalItemsProcessed]),
		RequestURL:          stringValue(data[models.AttrRequestURL]),
		ResponseStatus:      numberValue(data[models.AttrResponseStatus]),
		PaginationType:      stringValue(data[models.AttrPaginationType]),
		Timestamp:           stringValue(data[models.AttrTimestamp]),
		Status:              models.ParseExecutionStatus(stringValue(data[models.AttrStatus])),
		IsLast:              boolValue(data[models.AttrIsLast]),
	}
}

// NormalizeRecords normalizes items preserving their order.
func NormalizeRecords(items []models.WireRecord) []models.ExecutionLogRecord {
	records := make([]models.ExecutionLogRecord, 0, len(items))
	for _, item := range items {
		records = append(records, NormalizeRecord(item))
	}
	return records
}

func stringValue(v models.AttributeValue) string {
	if v.S == nil {
		return ""
	}
	return *v.S
}

// numberValue parses an N attribute, truncating decimals. Every numeric
// field is a counter or a status code, so anything that is not a
// non-negative number within int range reads as 0.
func numberValue(v models.AttributeValue) int {
	if v.N == nil {
		return 0
	}
	raw := strings.TrimSpace(*v.N)
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || f < 0 || f >= math.MaxInt64 {
		return 0
	}
	return int(f)
}

func boolValue(v models.AttributeValue) bool {
	return v.BOOL != nil && *v.BOOL
}
