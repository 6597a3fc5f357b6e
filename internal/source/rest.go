// Package source implements service.ExecutionSource over the executions
// table, either through the REST endpoints or DynamoDB directly.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignatij/exectrack/pkg/models"
	"github.com/ignatij/exectrack/pkg/service"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnexpectedStatus is returned for a non-2xx response that does not
// carry an items envelope.
var ErrUnexpectedStatus = errors.New("unexpected response status")

const (
	itemsPath = "/executions-table/items"
	queryPath = "/executions-table/query"

	// QueryKeyCondition selects every record of one execution.
	QueryKeyCondition = "#execId = :execId"

	maxErrorBody = 512
)

// envelopeSchema only checks the envelope. Fields inside a record are
// defaulted by the normalizer rather than rejected here.
const envelopeSchema = `{
	"type": "object",
	"required": ["items"],
	"properties": {
		"items": {
			"type": "array",
			"items": {"type": "object"}
		}
	}
}`

var compiledEnvelope = jsonschema.MustCompileString("envelope.json", envelopeSchema)

// QueryRequest is the body of POST /executions-table/query.
type QueryRequest struct {
	KeyConditionExpression    string            `json:"KeyConditionExpression"`
	ExpressionAttributeNames  map[string]string `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues map[string]string `json:"ExpressionAttributeValues"`
}

// NewQueryRequest builds the key condition query for executionID.
func NewQueryRequest(executionID string) QueryRequest {
	return QueryRequest{
		KeyConditionExpression:    QueryKeyCondition,
		ExpressionAttributeNames:  map[string]string{"#execId": models.AttrExecID},
		ExpressionAttributeValues: map[string]string{":execId": executionID},
	}
}

type itemsEnvelope struct {
	Items []models.WireRecord `json:"items"`
}

// RESTSource reads the executions table through the BFF endpoints.
type RESTSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTSource creates a client for baseURL. timeout bounds each request
// on top of the caller's context.
func NewRESTSource(baseURL string, timeout time.Duration) *RESTSource {
	return &RESTSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListExecutions returns the full, unfiltered table.
func (s *RESTSource) ListExecutions(ctx context.Context) ([]models.WireRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+itemsPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	return s.do(req)
}

// QueryExecution returns every record whose exec-id equals executionID.
func (s *RESTSource) QueryExecution(ctx context.Context, executionID string) ([]models.WireRecord, error) {
	body, err := json.Marshal(NewQueryRequest(executionID))
	if err != nil {
		return nil, errors.Wrap(err, "marshal query")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return s.do(req)
}

func (s *RESTSource) do(req *http.Request) ([]models.WireRecord, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	items, decodeErr := decodeEnvelope(data)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// an empty envelope on an error status still means "nothing yet"
		if decodeErr == nil && len(items) == 0 {
			return nil, nil
		}
		return nil, errors.Wrapf(ErrUnexpectedStatus, "%s %s returned %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, truncate(data, maxErrorBody))
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return items, nil
}

func decodeEnvelope(data []byte) ([]models.WireRecord, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if err := compiledEnvelope.Validate(doc); err != nil {
		return nil, errors.Wrap(err, "invalid response envelope")
	}
	var env itemsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode items")
	}
	return env.Items, nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return fmt.Sprintf("%s...", data[:n])
}

var _ service.ExecutionSource = (*RESTSource)(nil)
