package service

import (
	"sort"

	"github.com/ignatij/exectrack/pkg/models"
)

// GroupExecutions reduces a flat record set into one group per execution ID.
// Root records set the group's parent (a later duplicate root overwrites an
// earlier one), every other record becomes a child. Children are sorted by
// iteration number; ties keep input order.
func GroupExecutions(records []models.ExecutionLogRecord) map[string]*models.ExecutionGroup {
	groups := make(map[string]*models.ExecutionGroup)
	for _, rec := range records {
		group, ok := groups[rec.ExecutionID]
		if !ok {
			group = &models.ExecutionGroup{Children: []models.ExecutionLogRecord{}}
			groups[rec.ExecutionID] = group
		}
		if rec.IsParent() {
			parent := rec
			group.Parent = &parent
			continue
		}
		group.Children = append(group.Children, rec)
	}
	for _, group := range groups {
		sortByIteration(group.Children)
	}
	return groups
}

// DuplicateParents returns the execution IDs that have more than one root
// record. Which root wins in that case is not defined by the upstream store.
func DuplicateParents(records []models.ExecutionLogRecord) []string {
	seen := make(map[string]int)
	var dups []string
	for _, rec := range records {
		if !rec.IsParent() {
			continue
		}
		seen[rec.ExecutionID]++
		if seen[rec.ExecutionID] == 2 {
			dups = append(dups, rec.ExecutionID)
		}
	}
	return dups
}

// SortedExecutionIDs orders groups newest first by their root timestamp.
// Groups without a root go last; ties are broken by execution ID.
func SortedExecutionIDs(groups map[string]*models.ExecutionGroup) []string {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := rootTimestamp(groups[ids[i]]), rootTimestamp(groups[ids[j]])
		if ti != tj {
			return ti > tj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// FlattenGroups returns every record of the given groups, parent first.
func FlattenGroups(groups map[string]*models.ExecutionGroup) []models.ExecutionLogRecord {
	var records []models.ExecutionLogRecord
	for _, id := range SortedExecutionIDs(groups) {
		group := groups[id]
		if group.Parent != nil {
			records = append(records, *group.Parent)
		}
		records = append(records, group.Children...)
	}
	return records
}

// SortTrackedRecords returns a copy of records with the root record first
// and children ascending by iteration number.
func SortTrackedRecords(records []models.ExecutionLogRecord) []models.ExecutionLogRecord {
	sorted := make([]models.ExecutionLogRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].IsParent(), sorted[j].IsParent()
		if pi != pj {
			return pi
		}
		if pi {
			return false
		}
		return sorted[i].IterationNumber < sorted[j].IterationNumber
	})
	return sorted
}

// findParent returns the root record of a tracked record set. Like
// GroupExecutions, the last root wins when there are several.
func findParent(records []models.ExecutionLogRecord) (models.ExecutionLogRecord, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].IsParent() {
			return records[i], true
		}
	}
	return models.ExecutionLogRecord{}, false
}

func sortByIteration(children []models.ExecutionLogRecord) {
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].IterationNumber < children[j].IterationNumber
	})
}

func rootTimestamp(group *models.ExecutionGroup) string {
	if group == nil || group.Parent == nil {
		return ""
	}
	return group.Parent.Timestamp
}
