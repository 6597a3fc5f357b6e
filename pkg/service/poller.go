package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignatij/exectrack/pkg/models"
	"github.com/ignatij/exectrack/pkg/storage"
	"github.com/pkg/errors"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxRetries   = 5
	// no timeout upstream; a hung fetch fails the session after this long
	DefaultFetchTimeout = 10 * time.Second

	NotFoundMessage = "No execution found for this ID."
)

var ErrEmptyExecutionID = errors.New("execution ID cannot be empty")

type PollState string

const (
	IdlePollState           PollState = "idle"
	TrackingPollState       PollState = "tracking"
	CompletedPollState      PollState = "completed"
	FailedPollState         PollState = "failed"
	RetryExhaustedPollState PollState = "retry-exhausted"
)

// Snapshot is a copy of the controller state handed to callers.
// TrackedExecutionID is only set while tracking; LastExecutionID keeps the
// ID of the most recent session after it ends.
type Snapshot struct {
	SessionID          string
	TrackedExecutionID string
	LastExecutionID    string
	State              PollState
	IsPolling          bool
	RetryCount         int
	Records            []models.ExecutionLogRecord
	NotFoundMessage    string
	Err                error
}

type ControllerOption func(*Controller)

func WithPollInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithMaxRetries(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

func WithFetchTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

func WithScheduler(s Scheduler) ControllerOption {
	return func(c *Controller) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithSlot sets the persisted slot name, storage.DefaultSlot by default.
func WithSlot(slot string) ControllerOption {
	return func(c *Controller) {
		if slot != "" {
			c.slot = slot
		}
	}
}

// WithObserver registers fn to receive a snapshot after every state change.
// Observers run outside the controller lock and may call back into it.
func WithObserver(fn func(Snapshot)) ControllerOption {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// pollingSession is the state of one tracked execution. A tick captures the
// session pointer and only applies its result while that session is current.
type pollingSession struct {
	id          string
	executionID string
	seq         uint64
	inFlight    bool
	task        Task
	cancelFetch context.CancelFunc
}

// Controller live-polls a single tracked execution and keeps the all-time
// execution listing. It exclusively owns the tracked ID and retry counter.
type Controller struct {
	source       ExecutionSource
	store        storage.SessionStore
	logger       Logger
	scheduler    Scheduler
	interval     time.Duration
	fetchTimeout time.Duration
	maxRetries   int
	slot         string
	observers    []func(Snapshot)

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	state           PollState
	session         *pollingSession
	lastSessionID   string
	lastExecutionID string
	retryCount      int
	records         []models.ExecutionLogRecord
	notFoundMessage string
	lastErr         error
	done            chan struct{}
	lastTask        Task

	allRecords []models.ExecutionLogRecord
	allGroups  map[string]*models.ExecutionGroup
}

func NewController(ctx context.Context, source ExecutionSource, store storage.SessionStore, logger Logger, opts ...ControllerOption) *Controller {
	baseCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	close(done)
	c := &Controller{
		source:       source,
		store:        store,
		logger:       logger,
		scheduler:    NewTickerScheduler(),
		interval:     DefaultPollInterval,
		fetchTimeout: DefaultFetchTimeout,
		maxRetries:   DefaultMaxRetries,
		slot:         storage.DefaultSlot,
		ctx:          baseCtx,
		cancel:       cancel,
		state:        IdlePollState,
		done:         done,
		allGroups:    make(map[string]*models.ExecutionGroup),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartTracking begins polling executionID, replacing any tracked execution.
// Records, retry counter and messages of the previous session are cleared
// and the ID is saved to the persisted slot.
func (c *Controller) StartTracking(executionID string) error {
	id := strings.TrimSpace(executionID)
	if id == "" {
		return ErrEmptyExecutionID
	}
	if c.ctx.Err() != nil {
		return errors.Wrap(c.ctx.Err(), "controller closed")
	}

	c.mu.Lock()
	if c.state == TrackingPollState {
		c.finishLocked(IdlePollState)
	}
	sess := &pollingSession{id: uuid.NewString(), executionID: id}
	c.session = sess
	c.lastSessionID = sess.id
	c.lastExecutionID = id
	c.state = TrackingPollState
	c.retryCount = 0
	c.records = nil
	c.notFoundMessage = ""
	c.lastErr = nil
	c.done = make(chan struct{})
	if err := c.store.Save(c.slot, id); err != nil {
		c.logger.Errorf("Failed to persist tracked execution %s: %v", id, err)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Infof("Tracking execution %s (session %s)", id, sess.id)
	c.notify(snap)

	task := c.scheduler.Every(c.interval, func() { c.poll(sess) })
	c.mu.Lock()
	c.lastTask = task
	if c.session == sess {
		sess.task = task
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	// the session already ended during its first run
	task.Cancel()
	return nil
}

// Resume starts tracking the execution remembered in the persisted slot.
// It reports false when the slot is empty.
func (c *Controller) Resume() (bool, error) {
	id, err := c.store.Load(c.slot)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "load tracked execution")
	}
	if err := c.StartTracking(id); err != nil {
		return false, err
	}
	return true, nil
}

// StopTracking abandons the tracked execution and clears the persisted slot.
func (c *Controller) StopTracking() {
	c.mu.Lock()
	if c.state != TrackingPollState {
		c.mu.Unlock()
		return
	}
	id := c.session.executionID
	c.records = nil
	c.finishLocked(IdlePollState)
	c.clearSlotLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Infof("Stopped tracking execution %s", id)
	c.notify(snap)
}

// Close stops polling and cancels in-flight fetches. The persisted slot is
// left alone so a new controller can Resume.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == TrackingPollState {
		c.finishLocked(IdlePollState)
	}
	task := c.lastTask
	c.lastTask = nil
	c.mu.Unlock()
	c.cancel()
	if w, ok := task.(interface{ Wait() }); ok {
		w.Wait()
	}
}

// Snapshot returns a copy of the current tracking state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Done returns a channel closed when the current session leaves tracking.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// LoadAllExecutions fetches the full listing once and regroups it.
func (c *Controller) LoadAllExecutions(ctx context.Context) error {
	items, err := c.source.ListExecutions(ctx)
	if err != nil {
		return errors.Wrap(err, "list executions")
	}
	records := NormalizeRecords(items)
	for _, id := range DuplicateParents(records) {
		c.logger.Debugf("Execution %s has more than one root record; keeping the last one", id)
	}
	groups := GroupExecutions(records)

	c.mu.Lock()
	c.allRecords = records
	c.allGroups = groups
	c.mu.Unlock()
	c.logger.Infof("Loaded %d records across %d executions", len(records), len(groups))
	return nil
}

// AllExecutionGroups returns the grouped all-time listing.
func (c *Controller) AllExecutionGroups() map[string]*models.ExecutionGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	groups := make(map[string]*models.ExecutionGroup, len(c.allGroups))
	for k, v := range c.allGroups {
		groups[k] = v
	}
	return groups
}

// Search filters the all-time listing by term.
func (c *Controller) Search(term string) []models.ExecutionLogRecord {
	c.mu.Lock()
	records := c.allRecords
	c.mu.Unlock()
	return FilterRecords(term, records)
}

func (c *Controller) poll(sess *pollingSession) {
	c.mu.Lock()
	if c.session != sess || c.state != TrackingPollState || sess.inFlight {
		c.mu.Unlock()
		return
	}
	sess.inFlight = true
	sess.seq++
	seq := sess.seq
	fetchCtx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
	sess.cancelFetch = cancel
	c.mu.Unlock()

	items, err := c.source.QueryExecution(fetchCtx, sess.executionID)
	cancel()

	c.mu.Lock()
	sess.inFlight = false
	sess.cancelFetch = nil
	if c.session != sess || c.state != TrackingPollState || seq != sess.seq {
		c.mu.Unlock()
		c.logger.Debugf("Discarding stale result %d for execution %s", seq, sess.executionID)
		return
	}
	// shutdown is not a fetch failure; the slot stays for Resume
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		c.logger.Debugf("Discarding result %d for execution %s: controller shutting down", seq, sess.executionID)
		return
	}
	changed := c.applyLocked(sess, items, err)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.notify(snap)
	}
}

// applyLocked runs one state machine step for a fetch result. It reports
// whether anything observable changed.
func (c *Controller) applyLocked(sess *pollingSession, items []models.WireRecord, err error) bool {
	if err != nil {
		c.lastErr = errors.Wrapf(err, "fetch execution %s", sess.executionID)
		c.logger.Errorf("Polling execution %s failed: %v", sess.executionID, err)
		c.records = nil
		c.finishLocked(FailedPollState)
		c.clearSlotLocked()
		return true
	}

	if len(items) == 0 {
		c.retryCount++
		c.logger.Debugf("No records yet for execution %s (attempt %d/%d)", sess.executionID, c.retryCount, c.maxRetries)
		if c.retryCount < c.maxRetries {
			return true
		}
		c.logger.Infof("Execution %s not found after %d attempts", sess.executionID, c.retryCount)
		c.records = nil
		c.notFoundMessage = NotFoundMessage
		c.finishLocked(RetryExhaustedPollState)
		c.clearSlotLocked()
		return true
	}

	c.retryCount = 0
	records := SortTrackedRecords(NormalizeRecords(items))
	for _, id := range DuplicateParents(records) {
		c.logger.Debugf("Execution %s has more than one root record; keeping the last one", id)
	}
	c.records = records

	parent, ok := findParent(records)
	if !ok {
		return true
	}
	switch parent.Status {
	case models.CompletedExecutionStatus:
		c.logger.Infof("Execution %s completed", sess.executionID)
		c.finishLocked(CompletedPollState)
		c.clearSlotLocked()
	case models.ErrorExecutionStatus:
		c.logger.Infof("Execution %s finished with an error", sess.executionID)
		c.finishLocked(FailedPollState)
		c.clearSlotLocked()
	}
	return true
}

// finishLocked leaves the tracking state: the repeating task and any
// in-flight fetch are cancelled before the new state is visible.
func (c *Controller) finishLocked(state PollState) {
	if sess := c.session; sess != nil {
		if sess.task != nil {
			sess.task.Cancel()
		}
		if sess.cancelFetch != nil {
			sess.cancelFetch()
		}
	}
	c.session = nil
	c.state = state
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Controller) clearSlotLocked() {
	if err := c.store.Clear(c.slot); err != nil {
		c.logger.Errorf("Failed to clear tracked execution slot: %v", err)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:       c.lastSessionID,
		LastExecutionID: c.lastExecutionID,
		State:           c.state,
		IsPolling:       c.state == TrackingPollState,
		RetryCount:      c.retryCount,
		NotFoundMessage: c.notFoundMessage,
		Err:             c.lastErr,
	}
	if c.session != nil {
		snap.TrackedExecutionID = c.session.executionID
	}
	if c.records != nil {
		snap.Records = make([]models.ExecutionLogRecord, len(c.records))
		copy(snap.Records, c.records)
	}
	return snap
}

func (c *Controller) notify(snap Snapshot) {
	for _, fn := range c.observers {
		fn(snap)
	}
}
