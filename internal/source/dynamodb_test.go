package source_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ignatij/exectrack/internal/source"
	"github.com/ignatij/exectrack/pkg/models"
	"github.com/ignatij/exectrack/pkg/service"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo serves pages of items, keyed by a "page" cursor.
type fakeDynamo struct {
	pages   [][]map[string]types.AttributeValue
	err     error
	scans   []*dynamodb.ScanInput
	queries []*dynamodb.QueryInput
}

func (f *fakeDynamo) page(start map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue) {
	i := 0
	if cursor, ok := start["page"].(*types.AttributeValueMemberN); ok {
		i, _ = strconv.Atoi(cursor.Value)
	}
	if i >= len(f.pages) {
		return nil, nil
	}
	var next map[string]types.AttributeValue
	if i+1 < len(f.pages) {
		next = map[string]types.AttributeValue{"page": &types.AttributeValueMemberN{Value: strconv.Itoa(i + 1)}}
	}
	return f.pages[i], next
}

func (f *fakeDynamo) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans = append(f.scans, params)
	if f.err != nil {
		return nil, f.err
	}
	items, next := f.page(params.ExclusiveStartKey)
	return &dynamodb.ScanOutput{Items: items, LastEvaluatedKey: next}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, params)
	if f.err != nil {
		return nil, f.err
	}
	items, next := f.page(params.ExclusiveStartKey)
	return &dynamodb.QueryOutput{Items: items, LastEvaluatedKey: next}, nil
}

func item(execID, childID string, iteration int, status string) map[string]types.AttributeValue {
	data := map[string]types.AttributeValue{
		models.AttrIterationNo: &types.AttributeValueMemberN{Value: strconv.Itoa(iteration)},
		models.AttrIsLast:      &types.AttributeValueMemberBOOL{Value: iteration == 0},
		models.AttrRequestURL:  &types.AttributeValueMemberS{Value: "https://api.example.com/items"},
		"tags":                 &types.AttributeValueMemberSS{Value: []string{"ignored"}},
	}
	if status != "" {
		data[models.AttrStatus] = &types.AttributeValueMemberS{Value: status}
	}
	return map[string]types.AttributeValue{
		models.AttrExecID:      &types.AttributeValueMemberS{Value: execID},
		models.AttrChildExecID: &types.AttributeValueMemberS{Value: childID},
		models.AttrData:        &types.AttributeValueMemberM{Value: data},
	}
}

func TestDynamoDBSource_ListExecutions(t *testing.T) {
	client := &fakeDynamo{pages: [][]map[string]types.AttributeValue{
		{item("exec-1", "exec-1", 0, "completed"), item("exec-1", "exec-1-a", 1, "")},
		{item("exec-2", "exec-2", 0, "")},
	}}
	src := source.NewDynamoDBSource(client, "executions-table")

	items, err := src.ListExecutions(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Len(t, client.scans, 2)
	assert.Equal(t, "executions-table", aws.ToString(client.scans[0].TableName))

	groups := service.GroupExecutions(service.NormalizeRecords(items))
	assert.Len(t, groups, 2)
	require.NotNil(t, groups["exec-1"].Parent)
	assert.Equal(t, models.CompletedExecutionStatus, groups["exec-1"].Parent.Status)
	assert.True(t, groups["exec-1"].Parent.IsLast)
	assert.Len(t, groups["exec-1"].Children, 1)
}

func TestDynamoDBSource_QueryExecution(t *testing.T) {
	t.Run("KeyCondition", func(t *testing.T) {
		client := &fakeDynamo{pages: [][]map[string]types.AttributeValue{
			{item("exec-1", "exec-1", 0, "")},
		}}
		src := source.NewDynamoDBSource(client, "executions-table")

		items, err := src.QueryExecution(context.Background(), "exec-1")
		require.NoError(t, err)
		assert.Len(t, items, 1)

		require.Len(t, client.queries, 1)
		q := client.queries[0]
		assert.Equal(t, "#execId = :execId", aws.ToString(q.KeyConditionExpression))
		assert.Equal(t, map[string]string{"#execId": "exec-id"}, q.ExpressionAttributeNames)
		assert.Equal(t, &types.AttributeValueMemberS{Value: "exec-1"}, q.ExpressionAttributeValues[":execId"])
	})

	t.Run("Empty", func(t *testing.T) {
		src := source.NewDynamoDBSource(&fakeDynamo{}, "executions-table")
		items, err := src.QueryExecution(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("Error", func(t *testing.T) {
		boom := errors.New("throttled")
		src := source.NewDynamoDBSource(&fakeDynamo{err: boom}, "executions-table")
		_, err := src.QueryExecution(context.Background(), "exec-1")
		assert.ErrorIs(t, err, boom)
	})
}

func TestConvertItem(t *testing.T) {
	rec := service.NormalizeRecord(source.ConvertItem(item("exec-1", "exec-1-b", 3, "error")))
	assert.Equal(t, "exec-1", rec.ExecutionID)
	assert.Equal(t, "exec-1-b", rec.ChildExecutionID)
	assert.Equal(t, 3, rec.IterationNumber)
	assert.Equal(t, models.ErrorExecutionStatus, rec.Status)
	assert.False(t, rec.IsLast)

	t.Run("UnsupportedMembers", func(t *testing.T) {
		wire := source.ConvertItem(map[string]types.AttributeValue{
			models.AttrExecID: &types.AttributeValueMemberL{},
			models.AttrData:   &types.AttributeValueMemberNULL{Value: true},
		})
		rec := service.NormalizeRecord(wire)
		assert.Empty(t, rec.ExecutionID)
		assert.Equal(t, models.InProgressExecutionStatus, rec.Status)
	})
}
