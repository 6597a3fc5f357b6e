package service_test

import (
	"testing"

	"github.com/ignatij/exectrack/pkg/models"
	"github.com/ignatij/exectrack/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupExecutions(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, service.GroupExecutions(nil))
	})

	t.Run("ParentOnly", func(t *testing.T) {
		groups := service.GroupExecutions([]models.ExecutionLogRecord{
			record("X", "X", 0, models.InProgressExecutionStatus),
		})
		require.Len(t, groups, 1)
		require.NotNil(t, groups["X"].Parent)
		assert.Equal(t, "X", groups["X"].Parent.ChildExecutionID)
		assert.Empty(t, groups["X"].Children)
	})

	t.Run("ChildrenSortedByIteration", func(t *testing.T) {
		groups := service.GroupExecutions([]models.ExecutionLogRecord{
			record("A", "A-3", 3, models.InProgressExecutionStatus),
			record("B", "B-1", 1, models.InProgressExecutionStatus),
			record("A", "A-1", 1, models.InProgressExecutionStatus),
			record("A", "A", 0, models.InProgressExecutionStatus),
			record("A", "A-2", 2, models.InProgressExecutionStatus),
		})
		require.Len(t, groups, 2)

		a := groups["A"]
		require.NotNil(t, a.Parent)
		require.Len(t, a.Children, 3)
		for i, child := range a.Children {
			assert.Equal(t, i+1, child.IterationNumber)
		}

		b := groups["B"]
		assert.Nil(t, b.Parent)
		assert.Len(t, b.Children, 1)
	})

	t.Run("EqualIterationsKeepInputOrder", func(t *testing.T) {
		groups := service.GroupExecutions([]models.ExecutionLogRecord{
			record("A", "A-b", 1, models.InProgressExecutionStatus),
			record("A", "A-a", 1, models.InProgressExecutionStatus),
			record("A", "A-c", 0, models.InProgressExecutionStatus),
		})
		children := groups["A"].Children
		require.Len(t, children, 3)
		assert.Equal(t, "A-c", children[0].ChildExecutionID)
		assert.Equal(t, "A-b", children[1].ChildExecutionID)
		assert.Equal(t, "A-a", children[2].ChildExecutionID)
	})

	t.Run("DuplicateParentLastWins", func(t *testing.T) {
		records := []models.ExecutionLogRecord{
			record("A", "A", 0, models.InProgressExecutionStatus),
			record("A", "A-1", 1, models.InProgressExecutionStatus),
			record("A", "A", 0, models.CompletedExecutionStatus),
		}
		groups := service.GroupExecutions(records)
		require.NotNil(t, groups["A"].Parent)
		assert.Equal(t, models.CompletedExecutionStatus, groups["A"].Parent.Status)
		assert.Len(t, groups["A"].Children, 1)
		assert.Equal(t, []string{"A"}, service.DuplicateParents(records))
	})

	t.Run("OneGroupPerExecutionID", func(t *testing.T) {
		var records []models.ExecutionLogRecord
		for _, id := range []string{"a", "b", "c", "a", "b", "a"} {
			records = append(records, record(id, id+"-child", len(records), models.InProgressExecutionStatus))
		}
		groups := service.GroupExecutions(records)
		assert.Len(t, groups, 3)
		for _, group := range groups {
			for i := 1; i < len(group.Children); i++ {
				assert.LessOrEqual(t, group.Children[i-1].IterationNumber, group.Children[i].IterationNumber)
			}
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		records := []models.ExecutionLogRecord{
			record("A", "A-2", 2, models.InProgressExecutionStatus),
			record("A", "A", 0, models.InProgressExecutionStatus),
			record("B", "B", 0, models.CompletedExecutionStatus),
			record("A", "A-1", 1, models.InProgressExecutionStatus),
			record("C", "C-1", 1, models.ErrorExecutionStatus),
		}
		first := service.GroupExecutions(records)
		second := service.GroupExecutions(service.FlattenGroups(first))
		assert.Equal(t, first, second)
		assert.Len(t, service.FlattenGroups(second), len(records))
	})
}

func TestSortedExecutionIDs(t *testing.T) {
	older := record("old", "old", 0, models.CompletedExecutionStatus)
	older.Timestamp = "2024-01-01T00:00:00Z"
	newer := record("new", "new", 0, models.InProgressExecutionStatus)
	newer.Timestamp = "2024-06-01T00:00:00Z"
	orphan := record("orphan", "orphan-1", 1, models.InProgressExecutionStatus)

	groups := service.GroupExecutions([]models.ExecutionLogRecord{orphan, older, newer})
	assert.Equal(t, []string{"new", "old", "orphan"}, service.SortedExecutionIDs(groups))
}

func TestSortTrackedRecords(t *testing.T) {
	input := []models.ExecutionLogRecord{
		record("A", "A-2", 2, models.InProgressExecutionStatus),
		record("A", "A-1", 1, models.InProgressExecutionStatus),
		record("A", "A", 0, models.InProgressExecutionStatus),
		record("A", "A-0", 0, models.InProgressExecutionStatus),
	}
	sorted := service.SortTrackedRecords(input)
	require.Len(t, sorted, 4)
	assert.Equal(t, "A", sorted[0].ChildExecutionID)
	assert.Equal(t, "A-0", sorted[1].ChildExecutionID)
	assert.Equal(t, "A-1", sorted[2].ChildExecutionID)
	assert.Equal(t, "A-2", sorted[3].ChildExecutionID)

	// input untouched
	assert.Equal(t, "A-2", input[0].ChildExecutionID)
}
