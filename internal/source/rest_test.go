package source_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ignatij/exectrack/internal/source"
	"github.com/ignatij/exectrack/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const itemsBody = `{"items": [
	{"exec-id": {"S": "exec-1"}, "child-exec-id": {"S": "exec-1"}, "data": {"M": {
		"status": {"S": "completed"},
		"total-items-processed": {"N": "42"},
		"is-last": {"BOOL": true}
	}}},
	{"exec-id": {"S": "exec-1"}, "child-exec-id": {"S": "exec-1-a"}, "data": {"M": {
		"iteration-no": {"N": "1"},
		"request-url": {"S": "https://api.example.com/items?page=1"}
	}}}
]}`

func TestRESTSource_QueryExecution(t *testing.T) {
	var gotBody map[string]interface{}
	var gotMethod, gotPath, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(itemsBody))
	}))
	defer server.Close()

	src := source.NewRESTSource(server.URL+"/", time.Second)
	items, err := src.QueryExecution(context.Background(), "exec-1")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/executions-table/query", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]interface{}{
		"KeyConditionExpression":    "#execId = :execId",
		"ExpressionAttributeNames":  map[string]interface{}{"#execId": "exec-id"},
		"ExpressionAttributeValues": map[string]interface{}{":execId": "exec-1"},
	}, gotBody)

	require.Len(t, items, 2)
	records := service.NormalizeRecords(items)
	assert.True(t, records[0].IsParent())
	assert.Equal(t, 42, records[0].TotalItemsProcessed)
	assert.True(t, records[0].IsLast)
	assert.Equal(t, "exec-1-a", records[1].ChildExecutionID)
	assert.Equal(t, 1, records[1].IterationNumber)
}

func TestRESTSource_ListExecutions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/executions-table/items" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(itemsBody))
	}))
	defer server.Close()

	src := source.NewRESTSource(server.URL+"/api", time.Second)
	items, err := src.ListExecutions(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRESTSource_Responses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expectedLen int
		expectErr   bool
		errIs       error
	}{
		{name: "EmptyItems", status: http.StatusOK, body: `{"items": []}`},
		{name: "EmptyItemsOnNotFound", status: http.StatusNotFound, body: `{"items": []}`},
		{name: "ServerError", status: http.StatusInternalServerError, body: `{"error": "boom"}`, expectErr: true, errIs: source.ErrUnexpectedStatus},
		{name: "NotFoundWithoutEnvelope", status: http.StatusNotFound, body: `not found`, expectErr: true, errIs: source.ErrUnexpectedStatus},
		{name: "MissingItems", status: http.StatusOK, body: `{"records": []}`, expectErr: true},
		{name: "ItemsNotArray", status: http.StatusOK, body: `{"items": {}}`, expectErr: true},
		{name: "ItemNotObject", status: http.StatusOK, body: `{"items": ["exec-1"]}`, expectErr: true},
		{name: "InvalidJSON", status: http.StatusOK, body: `{"items": [`, expectErr: true},
		{
			name:        "WrongFieldShapeIsDefaulted",
			status:      http.StatusOK,
			body:        `{"items": [{"exec-id": "exec-1", "child-exec-id": {"N": "7"}, "data": {"M": {"iteration-no": {"S": "x"}}}}]}`,
			expectedLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			items, err := source.NewRESTSource(server.URL, time.Second).QueryExecution(context.Background(), "exec-1")
			if tt.expectErr {
				require.Error(t, err)
				if tt.errIs != nil {
					assert.ErrorIs(t, err, tt.errIs)
				}
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.expectedLen)
		})
	}
}

func TestRESTSource_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := source.NewRESTSource(server.URL, time.Minute).QueryExecution(ctx, "exec-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
