package service_test

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignatij/exectrack/pkg/models"
	"github.com/ignatij/exectrack/pkg/service"
)

type logger struct{}

func (l logger) Debugf(format string, args ...interface{}) {
	// no-op
}

func (l logger) Infof(format string, args ...interface{}) {
	// no-op
}

func (l logger) Errorf(format string, args ...interface{}) {
	// no-op
}

// wire builds an executions table item. An empty status leaves the
// attribute out.
func wire(execID, childID string, iteration int, status string) models.WireRecord {
	data := map[string]models.AttributeValue{
		models.AttrIterationNo: models.NumberAttr(strconv.Itoa(iteration)),
		models.AttrRequestURL:  models.StringAttr("https://api.example.com/items?page=" + strconv.Itoa(iteration)),
		models.AttrTimestamp:   models.StringAttr("2024-05-01T10:00:0" + strconv.Itoa(iteration%10) + "Z"),
	}
	if status != "" {
		data[models.AttrStatus] = models.StringAttr(status)
	}
	return models.WireRecord{
		ExecID:      models.StringAttr(execID),
		ChildExecID: models.StringAttr(childID),
		Data:        models.AttributeValue{M: data},
	}
}

func record(execID, childID string, iteration int, status models.ExecutionStatus) models.ExecutionLogRecord {
	return models.ExecutionLogRecord{
		ExecutionID:      execID,
		ChildExecutionID: childID,
		IterationNumber:  iteration,
		Status:           status,
	}
}

// fakeSource answers queries through queryFn and counts calls.
type fakeSource struct {
	all     []models.WireRecord
	listErr error
	queryFn func(ctx context.Context, executionID string) ([]models.WireRecord, error)
	calls   atomic.Int32
}

func (f *fakeSource) ListExecutions(ctx context.Context) ([]models.WireRecord, error) {
	return f.all, f.listErr
}

func (f *fakeSource) QueryExecution(ctx context.Context, executionID string) ([]models.WireRecord, error) {
	f.calls.Add(1)
	if f.queryFn == nil {
		return nil, nil
	}
	return f.queryFn(ctx, executionID)
}

// sequence returns a queryFn that replays responses in order and keeps
// returning the last one.
func sequence(responses ...[]models.WireRecord) func(context.Context, string) ([]models.WireRecord, error) {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, id string) ([]models.WireRecord, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(responses) == 0 {
			return nil, nil
		}
		resp := responses[i]
		if i < len(responses)-1 {
			i++
		}
		return resp, nil
	}
}

// manualScheduler runs tasks only when Tick is called.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	fn        func()
	cancelled atomic.Bool
}

func (t *manualTask) Cancel() {
	t.cancelled.Store(true)
}

func (s *manualScheduler) Every(_ time.Duration, fn func()) service.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *manualScheduler) Tick() {
	s.mu.Lock()
	tasks := append([]*manualTask(nil), s.tasks...)
	s.mu.Unlock()
	for _, t := range tasks {
		if !t.cancelled.Load() {
			t.fn()
		}
	}
}

func (s *manualScheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.cancelled.Load() {
			n++
		}
	}
	return n
}
