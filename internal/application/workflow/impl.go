package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-reconciler/internal/application/dispatcher"
	"github.com/garyjia/invoice-reconciler/internal/application/port"
	"github.com/garyjia/invoice-reconciler/internal/domain/approval"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
	"github.com/garyjia/invoice-reconciler/internal/domain/event"
	domainwf "github.com/garyjia/invoice-reconciler/internal/domain/workflow"
)

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	store     port.CheckpointStore
	tools     Tools
	gate      approval.Gate
	publisher dispatcher.Publisher
	logger    Logger
	now       func() time.Time
	newRunID  func() string

	steps map[domainwf.State]nodeFunc
	locks *threadLocks
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithPublisher sets where thread events are sent after each committed checkpoint
func WithPublisher(p dispatcher.Publisher) EngineOption {
	return func(e *engineImpl) {
		e.publisher = p
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithRunIDGenerator overrides the uuid run id generator
func WithRunIDGenerator(gen func() string) EngineOption {
	return func(e *engineImpl) {
		e.newRunID = gen
	}
}

// NewEngine creates a new workflow engine
func NewEngine(store port.CheckpointStore, tools Tools, gate approval.Gate, opts ...EngineOption) WorkflowEngine {
	e := &engineImpl{
		store:    store,
		tools:    tools,
		gate:     gate,
		logger:   nopLogger{},
		now:      func() time.Time { return time.Now().UTC() },
		newRunID: uuid.NewString,
		locks:    newThreadLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.steps = e.nodes()
	return e
}

func (e *engineImpl) StartRun(ctx context.Context, threadID, vendorID string) (*RunResult, error) {
	if threadID == "" {
		return nil, fmt.Errorf("%w: thread id is required", ErrInvalidInput)
	}

	unlock := e.locks.lock(threadID)
	defer unlock()

	var version int64
	prev, err := e.load(ctx, threadID)
	switch {
	case err == nil:
		node := domainwf.State(prev.Node)
		if !node.IsTerminal() {
			return nil, &domainwf.InvalidStateError{ThreadID: threadID, Node: node, Op: "start"}
		}
		version = prev.Version
	case errors.Is(err, domainwf.ErrUnknownThread):
	default:
		return nil, err
	}

	now := e.now()
	st := &entity.ThreadState{
		ThreadID:  threadID,
		RunID:     e.newRunID(),
		VendorID:  vendorID,
		Node:      domainwf.StateStart.String(),
		Status:    entity.RunStatusPending,
		Results:   []entity.ReconciliationResult{},
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Save(ctx, st); err != nil {
		return nil, &domainwf.PersistenceError{Op: "save", ThreadID: threadID, Err: err}
	}

	e.logger.Info("Run started", "thread_id", threadID, "run_id", st.RunID, "vendor_id", vendorID)
	e.publish(ctx, st, event.NewEvent(event.TypeRunStarted, st.ThreadID, st.RunID, map[string]interface{}{
		event.KeyVendorID: vendorID,
	}))

	final, err := e.drive(ctx, st)
	if err != nil {
		return nil, err
	}
	return newRunResult(final), nil
}

func (e *engineImpl) ResumeRun(ctx context.Context, threadID string, approved bool) (*RunResult, error) {
	if threadID == "" {
		return nil, fmt.Errorf("%w: thread id is required", ErrInvalidInput)
	}

	unlock := e.locks.lock(threadID)
	defer unlock()

	st, err := e.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	node := domainwf.State(st.Node)
	if !node.IsSuspended() {
		return nil, &domainwf.InvalidStateError{ThreadID: threadID, Node: node, Op: "resume"}
	}

	next := st.Clone()
	decision := approved
	next.Approval = &decision

	trigger := domainwf.TriggerApprove
	if approved {
		next.ApprovedBy = entity.ApprovedByHuman
		next.Status = entity.RunStatusPending
	} else {
		trigger = domainwf.TriggerReject
		next.Status = entity.RunStatusCancelled
		if next.PendingPayment != nil {
			if idx, ok := next.ResultFor(next.PendingPayment.InvoiceID); ok {
				next.Results[idx].Invoice = next.Results[idx].Invoice.WithStatus(entity.InvoiceStatusRejected)
			}
		}
	}

	e.logger.Info("Resuming run", "thread_id", threadID, "run_id", st.RunID, "approved", approved)

	committed, err := e.advance(ctx, st, next, trigger)
	if err != nil {
		return nil, err
	}
	final, err := e.drive(ctx, committed)
	if err != nil {
		return nil, err
	}
	return newRunResult(final), nil
}

func (e *engineImpl) GetState(ctx context.Context, threadID string) (*StateSnapshot, error) {
	st, err := e.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return newSnapshot(st), nil
}

func (e *engineImpl) Recover(ctx context.Context, threadID string) (*RunResult, error) {
	unlock := e.locks.lock(threadID)
	defer unlock()

	st, err := e.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	node := domainwf.State(st.Node)
	if !node.IsRunnable() {
		return nil, &domainwf.InvalidStateError{ThreadID: threadID, Node: node, Op: "recover"}
	}

	e.logger.Info("Recovering run", "thread_id", threadID, "run_id", st.RunID, "node", st.Node, "version", st.Version)

	final, err := e.drive(ctx, st)
	if err != nil {
		return nil, err
	}
	return newRunResult(final), nil
}

func (e *engineImpl) History(ctx context.Context, threadID string) ([]*entity.Checkpoint, error) {
	checkpoints, err := e.store.History(ctx, threadID)
	if err != nil {
		return nil, &domainwf.PersistenceError{Op: "history", ThreadID: threadID, Err: err}
	}
	if len(checkpoints) == 0 {
		return nil, &domainwf.UnknownThreadError{ThreadID: threadID}
	}
	return checkpoints, nil
}

func (e *engineImpl) Purge(ctx context.Context, threadID string) error {
	unlock := e.locks.lock(threadID)
	defer unlock()

	if err := e.store.Purge(ctx, threadID); err != nil {
		if errors.Is(err, port.ErrCheckpointNotFound) {
			return &domainwf.UnknownThreadError{ThreadID: threadID}
		}
		return &domainwf.PersistenceError{Op: "purge", ThreadID: threadID, Err: err}
	}
	e.logger.Info("Thread purged", "thread_id", threadID)
	return nil
}

func (e *engineImpl) ListInterrupted(ctx context.Context, olderThan time.Duration) ([]*entity.ThreadState, error) {
	states, err := e.store.ListByNode(ctx, domainwf.StateInterrupted.String(), e.now().Add(-olderThan))
	if err != nil {
		return nil, &domainwf.PersistenceError{Op: "list", Err: err}
	}
	return states, nil
}

// drive executes nodes until the thread halts at INTERRUPTED or a terminal node.
// Every step is checkpointed before the next one starts.
func (e *engineImpl) drive(ctx context.Context, st *entity.ThreadState) (*entity.ThreadState, error) {
	for {
		node := domainwf.State(st.Node)
		if !node.IsRunnable() {
			return st, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		step, ok := e.steps[node]
		if !ok {
			return nil, fmt.Errorf("no step registered for node %s", node)
		}

		next, trigger, err := step(ctx, st.Clone())
		if err != nil {
			e.logger.Error("Step failed, checkpoint left at previous node",
				"thread_id", st.ThreadID, "node", node, "error", err)
			return nil, err
		}

		committed, err := e.advance(ctx, st, next, trigger)
		if err != nil {
			return nil, err
		}
		st = committed
	}
}

// advance applies trigger to prev's node, stamps next and saves it. Events are
// published only after the save commits; on failure next is discarded.
func (e *engineImpl) advance(ctx context.Context, prev, next *entity.ThreadState, trigger domainwf.Trigger) (*entity.ThreadState, error) {
	from := domainwf.State(prev.Node)
	to, err := reconciliationGraph.Transition(ctx, from, trigger, next)
	if err != nil {
		return nil, fmt.Errorf("thread %s: %w", prev.ThreadID, err)
	}

	next.Node = to.String()
	next.Steps = prev.Steps + 1
	next.Version = prev.Version
	next.UpdatedAt = e.now()

	if err := e.store.Save(ctx, next); err != nil {
		e.logger.Error("Checkpoint save failed, step discarded",
			"thread_id", prev.ThreadID, "from", from, "trigger", trigger, "error", err)
		return nil, &domainwf.PersistenceError{Op: "save", ThreadID: prev.ThreadID, Err: err}
	}

	e.logger.Info("Step committed",
		"thread_id", next.ThreadID,
		"run_id", next.RunID,
		"from", from,
		"to", next.Node,
		"trigger", trigger,
		"status", next.Status,
		"version", next.Version,
	)

	for _, evt := range eventsFor(trigger, next) {
		e.publish(ctx, next, evt)
	}
	return next, nil
}

func (e *engineImpl) publish(ctx context.Context, st *entity.ThreadState, evt *event.Event) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(ctx, evt.AtVersion(st.Version))
}

// load maps store errors onto the engine's error taxonomy
func (e *engineImpl) load(ctx context.Context, threadID string) (*entity.ThreadState, error) {
	st, err := e.store.Load(ctx, threadID)
	if err != nil {
		if errors.Is(err, port.ErrCheckpointNotFound) {
			return nil, &domainwf.UnknownThreadError{ThreadID: threadID}
		}
		return nil, &domainwf.PersistenceError{Op: "load", ThreadID: threadID, Err: err}
	}
	if !domainwf.State(st.Node).IsValid() {
		return nil, &domainwf.PersistenceError{
			Op:       "load",
			ThreadID: threadID,
			Err:      fmt.Errorf("checkpoint at unknown node %q", st.Node),
		}
	}
	return st, nil
}

func eventsFor(trigger domainwf.Trigger, st *entity.ThreadState) []*event.Event {
	newEvent := func(t event.Type, payload map[string]interface{}) *event.Event {
		payload[event.KeyStatus] = st.Status
		payload[event.KeyNode] = st.Node
		return event.NewEvent(t, st.ThreadID, st.RunID, payload)
	}

	switch trigger {
	case domainwf.TriggerRequireApproval:
		payload := map[string]interface{}{}
		if st.Interrupt != nil {
			payload[event.KeyInvoiceID] = st.Interrupt.InvoiceID
			payload[event.KeyVendorID] = st.Interrupt.VendorID
			payload[event.KeyAmount] = st.Interrupt.Amount.Cents()
			payload[event.KeyQuestion] = st.Interrupt.Question
		}
		return []*event.Event{newEvent(event.TypeRunInterrupted, payload)}

	case domainwf.TriggerApprove:
		return []*event.Event{newEvent(event.TypeRunResumed, map[string]interface{}{})}

	case domainwf.TriggerReject:
		payload := map[string]interface{}{}
		if st.PendingPayment != nil {
			payload[event.KeyInvoiceID] = st.PendingPayment.InvoiceID
		}
		return []*event.Event{newEvent(event.TypeRunCancelled, payload)}

	case domainwf.TriggerPaymentSucceeded:
		payload := map[string]interface{}{}
		if st.Receipt != nil {
			payload[event.KeyInvoiceID] = st.Receipt.InvoiceID
			payload[event.KeyVendorID] = st.Receipt.VendorID
			payload[event.KeyAmount] = st.Receipt.Amount.Cents()
			payload[event.KeyReference] = st.Receipt.Reference
		}
		return []*event.Event{
			newEvent(event.TypePaymentExecuted, payload),
			newEvent(event.TypeRunCompleted, map[string]interface{}{}),
		}

	case domainwf.TriggerNothingToPay:
		return []*event.Event{newEvent(event.TypeRunCompleted, map[string]interface{}{})}

	case domainwf.TriggerFail, domainwf.TriggerPaymentFailed:
		payload := map[string]interface{}{}
		if st.LastError != nil {
			payload[event.KeyError] = st.LastError.Message
		}
		return []*event.Event{newEvent(event.TypeRunFailed, payload)}
	}
	return nil
}

// threadLocks serializes steps per thread id inside one process
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

func (l *threadLocks) lock(threadID string) func() {
	l.mu.Lock()
	tl, ok := l.locks[threadID]
	if !ok {
		tl = &threadLock{}
		l.locks[threadID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, threadID)
		}
		l.mu.Unlock()
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
