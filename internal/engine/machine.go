package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/stopcontrol"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// LastErrorVar is the Global variable holding the message of the most
// recently caught error.
const LastErrorVar = "last_error"

// State is the lifecycle position of a Machine.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSuspended // sleeping inside a Delay
	StateCompleted
	StateStopped
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	}
	return "idle"
}

// Terminal reports whether the run is over.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateErrored
}

// Command is an inbound request to a running Machine.
type Command int

const (
	// CommandStop asks the run to stop at the next instruction boundary.
	CommandStop Command = iota + 1
)

// Frame is one active CallScenario invocation.
type Frame struct {
	ReturnAddress int
	Locals        *variables.Store
	ScenarioID    string

	// NodeID is the caller's current node, restored on return.
	NodeID string

	Bindings []graph.Binding
}

// Handler is an installed error handler. Depth is the call depth at which
// it was pushed; only errors raised at that depth or deeper reach it.
type Handler struct {
	CatchTarget int
	Depth       int
}

type override struct {
	name  string
	value expr.Value
}

// whileKey identifies the iteration counter of one WhileCheck in one frame.
type whileKey struct {
	depth, addr int
}

// Machine executes one compiled program, once.
//
// Everything inside a Machine is owned by the goroutine calling Run; the
// only values shared with the host are the stop control, the event queue,
// the run log and the command channel.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine, at most once
//   - Send(), Stop(), State(), RunID(): safe from any goroutine
//   - Globals(), Locals(): only after Run returns
type Machine struct {
	program *ir.Program
	project *graph.Project

	logger   *slog.Logger
	stop     *stopcontrol.Control
	logs     *runlog.Storage
	events   *EventQueue
	runner   ActivityRunner
	now      TimeSource
	clock    *Clock
	runIDs   RunIDGenerator
	commands chan Command

	maxCallDepth     int
	maxSteps         int
	snapshotInterval time.Duration
	delaySlice       time.Duration
	overrides        []override
	nodeTrace        bool

	runID   string
	state   atomic.Int32
	started atomic.Bool

	// Run state, owned by the Run goroutine.
	ip           int
	node         string
	done         bool
	global       *variables.Store
	mainLocals   *variables.Store
	frames       []Frame
	handlers     []Handler
	whileCounts  map[whileKey]int
	quota        *QuotaEnforcer
	startTime    time.Time
	lastSnapshot time.Time
	snapshotted  bool
}

// New creates a Machine for program, which must have been compiled from
// project. The run id is assigned here so hosts can record it before the
// run starts.
func New(program *ir.Program, project *graph.Project, opts ...Option) *Machine {
	m := &Machine{
		program:          program,
		project:          project,
		logger:           slog.Default(),
		stop:             stopcontrol.New(),
		logs:             runlog.New(),
		now:              systemTime{},
		clock:            NewClock(),
		runIDs:           UUIDv7Generator{},
		commands:         make(chan Command, 8),
		maxCallDepth:     DefaultMaxCallDepth,
		maxSteps:         DefaultMaxSteps,
		snapshotInterval: DefaultSnapshotInterval,
		delaySlice:       DefaultDelaySlice,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.runID = m.runIDs.Generate()
	return m
}

// RunID returns the identifier of this run.
func (m *Machine) RunID() string { return m.runID }

// State returns the current lifecycle state.
func (m *Machine) State() State { return State(m.state.Load()) }

// Logs returns the run log.
func (m *Machine) Logs() *runlog.Storage { return m.logs }

// StopControl returns the stop control observed by the run.
func (m *Machine) StopControl() *stopcontrol.Control { return m.stop }

// Steps returns how many instructions have been executed.
func (m *Machine) Steps() int {
	if m.quota == nil {
		return 0
	}
	return m.quota.Current()
}

// Send delivers cmd to the run. It never blocks; a full command buffer
// already holds a pending stop.
func (m *Machine) Send(cmd Command) {
	select {
	case m.commands <- cmd:
	default:
	}
}

// Stop sends CommandStop.
func (m *Machine) Stop() { m.Send(CommandStop) }

// Globals returns a copy of the Global store.
func (m *Machine) Globals() map[string]expr.Value {
	if m.global == nil {
		return map[string]expr.Value{}
	}
	return m.global.Snapshot()
}

// Locals returns a copy of the main scenario's local store.
func (m *Machine) Locals() map[string]expr.Value {
	if m.mainLocals == nil {
		return map[string]expr.Value{}
	}
	return m.mainLocals.Snapshot()
}

// Run executes the program until the outermost End, a stop or an
// unhandled error.
//
// Returns nil on completion, ErrStopped when stopped, and a *RuntimeError
// otherwise. The event queue, if any, is closed before Run returns.
func (m *Machine) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyRan
	}

	m.begin()
	err := m.loop(ctx)
	m.finish(err)
	return err
}

func (m *Machine) begin() {
	m.startTime = m.now.Now()
	m.global = variables.New(variables.ScopeGlobal)
	m.mainLocals = variables.New(variables.ScopeScenario)
	m.whileCounts = make(map[whileKey]int)
	m.quota = NewQuotaEnforcer(m.maxSteps)
	m.ip = m.program.EntryPoint

	m.global.Define(LastErrorVar, expr.String(""))
	for _, d := range m.project.Variables {
		if d.Scope == variables.ScopeScenario {
			m.mainLocals.Define(d.Name, d.Value)
			continue
		}
		m.global.Define(d.Name, d.Value)
	}
	mainID := m.project.MainScenario.ID
	for _, s := range m.project.AllScenarios() {
		for _, d := range s.Variables {
			switch {
			case d.Scope == variables.ScopeGlobal:
				m.global.Define(d.Name, d.Value)
			case s.ID == mainID:
				m.mainLocals.Define(d.Name, d.Value)
			}
		}
	}
	for _, o := range m.overrides {
		m.global.Define(o.name, o.value)
	}

	m.setState(StateRunning)
	m.logger.Info("run started",
		"run_id", m.runID,
		"project", m.project.Name,
		"instructions", m.program.Len())
}

func (m *Machine) loop(ctx context.Context) error {
	for {
		if m.interrupted(ctx) {
			return ErrStopped
		}
		m.maybeSnapshot(false)

		if err := m.quota.Check(); err != nil {
			return m.attach(err)
		}

		ins, ok := m.program.At(m.ip)
		if !ok {
			return m.attach(&RuntimeError{
				Code:    ErrCodeInvalidProgram,
				Message: fmt.Sprintf("instruction pointer %d out of range", m.ip),
			})
		}
		m.logger.Debug("exec", "run_id", m.runID, "ip", m.ip, "op", ins.Op())

		next, err := m.exec(ctx, ins)
		if err != nil {
			if errors.Is(err, ErrStopped) {
				return ErrStopped
			}
			err = m.attach(err)
			if m.catch(err) {
				continue
			}
			return err
		}
		if m.done {
			return nil
		}
		m.ip = next
	}
}

func (m *Machine) finish(err error) {
	switch {
	case err == nil:
		m.setState(StateCompleted)
		m.maybeSnapshot(true)
		m.emit(Event{Type: EventTypeCompleted, Completed: &Completed{}})
		m.logger.Info("run completed", "run_id", m.runID, "steps", m.quota.Current())

	case errors.Is(err, ErrStopped):
		m.record(runlog.LevelInfo, runlog.ActivitySystem, "Execution stopped by user")
		m.setState(StateStopped)
		m.maybeSnapshot(true)
		m.emit(Event{Type: EventTypeCompleted, Completed: &Completed{Stopped: true}})
		m.logger.Info("run stopped", "run_id", m.runID, "steps", m.quota.Current())

	default:
		msg := errorMessage(err)
		m.record(runlog.LevelError, runlog.ActivitySystem,
			fmt.Sprintf("Unhandled error: %s. No error handler connected.", msg))
		m.setState(StateErrored)
		m.maybeSnapshot(true)
		m.emit(Event{Type: EventTypeError, Error: &ErrorEvent{Message: msg}})
		m.logger.Error("run failed", "run_id", m.runID, "error", err)
	}

	if m.events != nil {
		m.events.Close()
	}
}

// interrupted drains pending commands, folds context cancellation into the
// stop flag and reports the flag.
func (m *Machine) interrupted(ctx context.Context) bool {
	for drained := false; !drained; {
		select {
		case cmd := <-m.commands:
			if cmd == CommandStop {
				m.stop.RequestStop()
			}
		default:
			drained = true
		}
	}
	if ctx.Err() != nil {
		m.stop.RequestStop()
	}
	return m.stop.IsStopped()
}

// catch routes err to the topmost handler installed at the current call
// depth or shallower. It reports whether the error was handled.
func (m *Machine) catch(err error) bool {
	if !IsCatchable(err) {
		return false
	}

	depth := len(m.frames)
	for i := len(m.handlers) - 1; i >= 0; i-- {
		h := m.handlers[i]
		if h.Depth > depth {
			continue
		}

		m.handlers = m.handlers[:i]
		m.unwind(h.Depth)

		msg := errorMessage(err)
		m.global.Define(LastErrorVar, expr.String(msg))
		m.record(runlog.LevelWarning, runlog.ActivityTryCatch, "Error caught: "+msg)
		m.logger.Warn("error caught", "run_id", m.runID, "error", err, "catch", h.CatchTarget)

		m.ip = h.CatchTarget
		return true
	}
	return false
}

// unwind discards call frames deeper than depth without copying bindings
// back.
func (m *Machine) unwind(depth int) {
	if len(m.frames) <= depth {
		return
	}
	m.node = m.frames[depth].NodeID
	m.frames = m.frames[:depth]
	m.dropWhileCounts(depth)
}

// ret pops the innermost frame, copies Out and InOut bindings back into
// the caller and returns the address after the call.
func (m *Machine) ret() int {
	frame := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]

	caller := m.locals()
	for _, b := range frame.Bindings {
		if !b.Direction.CopiesOut() {
			continue
		}
		v, ok := frame.Locals.Get(b.TargetVarName)
		if !ok {
			continue
		}
		if b.SourceScope == variables.ScopeGlobal {
			m.global.Define(b.SourceVarName, v)
		} else {
			caller.Define(b.SourceVarName, v)
		}
	}

	depth := len(m.frames)
	for len(m.handlers) > 0 && m.handlers[len(m.handlers)-1].Depth > depth {
		m.handlers = m.handlers[:len(m.handlers)-1]
	}
	m.dropWhileCounts(depth)
	m.node = frame.NodeID
	return frame.ReturnAddress
}

func (m *Machine) dropWhileCounts(depth int) {
	for k := range m.whileCounts {
		if k.depth > depth {
			delete(m.whileCounts, k)
		}
	}
}

// locals is the active local store: the innermost frame's, or main's.
func (m *Machine) locals() *variables.Store {
	if n := len(m.frames); n > 0 {
		return m.frames[n-1].Locals
	}
	return m.mainLocals
}

func (m *Machine) resolver() expr.Resolver {
	return variables.Chain(m.locals(), m.global)
}

func (m *Machine) scenarioID() string {
	if n := len(m.frames); n > 0 {
		return m.frames[n-1].ScenarioID
	}
	return m.project.MainScenario.ID
}

func (m *Machine) scenarioName(id string) string {
	if s, ok := m.project.Scenario(id); ok && s.Name != "" {
		return s.Name
	}
	return id
}

// attach stamps the current location onto a RuntimeError.
func (m *Machine) attach(err error) error {
	var re *RuntimeError
	if !errors.As(err, &re) {
		re = &RuntimeError{Code: ErrCodeEval, Message: err.Error(), Err: err}
	}
	if re.ScenarioID == "" {
		re.ScenarioID = m.scenarioID()
	}
	if re.NodeID == "" {
		re.NodeID = m.node
	}
	return re
}

func (m *Machine) setState(s State) {
	m.state.Store(int32(s))
}

func (m *Machine) elapsed() time.Duration {
	return m.now.Now().Sub(m.startTime)
}

// record appends an entry to the run log and forwards it as an event.
func (m *Machine) record(level runlog.Level, activity runlog.Activity, msg string) {
	elapsed := m.elapsed()
	entry := m.logs.Push(runlog.Entry{
		Elapsed:   elapsed,
		Timestamp: runlog.FormatTimestamp(elapsed),
		NodeID:    m.node,
		Level:     level,
		Activity:  activity,
		Message:   msg,
	})
	m.emit(Event{Type: EventTypeLog, Log: &entry})
}

func (m *Machine) emit(e Event) {
	if m.events == nil {
		return
	}
	e.Seq = m.clock.Next()
	m.events.Enqueue(e)
}

// maybeSnapshot emits a StateSnapshot at most once per snapshot interval,
// or unconditionally when force is set.
func (m *Machine) maybeSnapshot(force bool) {
	if m.events == nil {
		return
	}
	now := m.now.Now()
	if !force && m.snapshotted && now.Sub(m.lastSnapshot) < m.snapshotInterval {
		return
	}
	m.snapshotted = true
	m.lastSnapshot = now

	elapsed := now.Sub(m.startTime)
	m.emit(Event{Type: EventTypeSnapshot, Snapshot: &StateSnapshot{
		Timestamp:    runlog.FormatTimestamp(elapsed),
		Elapsed:      elapsed,
		GlobalVars:   m.global.Snapshot(),
		ScenarioVars: m.locals().Snapshot(),
	}})
}

// sleep waits d in delay slices, checking for a stop between slices.
func (m *Machine) sleep(ctx context.Context, d time.Duration) error {
	m.setState(StateSuspended)
	defer m.setState(StateRunning)

	for d > 0 {
		slice := min(d, m.delaySlice)
		if !m.stop.SleepInterruptible(slice) || m.interrupted(ctx) {
			return ErrStopped
		}
		d -= slice
		m.maybeSnapshot(false)
	}
	return nil
}
