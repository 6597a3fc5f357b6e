package service

import (
	"strconv"
	"strings"

	"github.com/ignatij/exectrack/pkg/models"
)

// FilterRecords keeps the records where term occurs, case-insensitively, in
// any of the searchable fields. Order is preserved. An empty term returns
// records unchanged; whitespace is part of the term.
func FilterRecords(term string, records []models.ExecutionLogRecord) []models.ExecutionLogRecord {
	if term == "" {
		return records
	}
	needle := strings.ToLower(term)
	matched := make([]models.ExecutionLogRecord, 0, len(records))
	for _, rec := range records {
		if recordMatches(needle, rec) {
			matched = append(matched, rec)
		}
	}
	return matched
}

func recordMatches(needle string, rec models.ExecutionLogRecord) bool {
	fields := []string{
		rec.ExecutionID,
		rec.ChildExecutionID,
		rec.RequestURL,
		string(rec.Status),
		rec.Status.Display(),
		rec.Timestamp,
		strconv.Itoa(rec.TotalItemsProcessed),
		strconv.Itoa(rec.IterationNumber),
		strconv.Itoa(rec.ResponseStatus),
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
