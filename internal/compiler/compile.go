package compiler

import (
	"fmt"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// Compile lowers every scenario of p into one flat program: the main
// scenario first, then the others in declared order.
//
// Each scenario is walked from its Start node. A node reached a second
// time becomes a Jump to its first emission, so shared tails and cycles
// are emitted once. Forward targets are recorded as labels and patched
// after all scenarios are emitted.
//
// Compilation is all-or-nothing. Every problem found is returned in an
// *Errors and no program is produced.
func Compile(p *graph.Project) (*ir.Program, error) {
	if p == nil {
		return nil, &Errors{Errs: []*CompileError{{Code: ErrInvalidActivity, Message: "project is nil"}}}
	}

	b := &builder{}
	prog := &ir.Program{
		ScenarioStart: make(map[string]int),
		CallGraph:     CallGraph(p),
	}

	seen := make(map[string]bool)
	for _, s := range p.AllScenarios() {
		if s.ID == "" {
			b.fail(&CompileError{Code: ErrInvalidActivity, Message: fmt.Sprintf("scenario %q has no id", s.Name)})
			continue
		}
		if seen[s.ID] {
			b.fail(&CompileError{Code: ErrInvalidActivity, ScenarioID: s.ID, Message: "duplicate scenario id"})
			continue
		}
		seen[s.ID] = true

		sc := newScenarioCompiler(b, p, s)
		if addr, ok := sc.compile(); ok {
			prog.ScenarioStart[s.ID] = addr
		}
	}

	if len(b.errs) == 0 {
		b.resolve()
	}
	if len(b.errs) > 0 {
		return nil, &Errors{Errs: b.errs}
	}

	prog.Instructions = b.instrs
	prog.EntryPoint = prog.ScenarioStart[p.MainScenario.ID]
	prog.RecursiveScenarios = RecursiveScenarios(prog.CallGraph)

	if err := prog.Verify(); err != nil {
		return nil, &Errors{Errs: []*CompileError{{Code: ErrUnresolvedTarget, Message: err.Error()}}}
	}
	return prog, nil
}

// label is a forward reference to an instruction address.
type label int

// fixup patches one target slot once its label is bound.
type fixup struct {
	addr  int
	field ir.Field
	label label
}

// builder accumulates instructions for the whole project.
type builder struct {
	instrs []ir.Instruction
	labels []int
	fixups []fixup
	errs   []*CompileError
}

func (b *builder) here() int { return len(b.instrs) }

func (b *builder) emit(ins ir.Instruction) int {
	b.instrs = append(b.instrs, ins)
	return len(b.instrs) - 1
}

func (b *builder) newLabel() label {
	b.labels = append(b.labels, ir.Unresolved)
	return label(len(b.labels) - 1)
}

// bind sets l to the next instruction address.
func (b *builder) bind(l label) { b.labels[l] = b.here() }

// ref records that the field of the instruction at addr targets l.
func (b *builder) ref(addr int, field ir.Field, l label) {
	b.fixups = append(b.fixups, fixup{addr: addr, field: field, label: l})
}

// jump emits a Jump to l.
func (b *builder) jump(l label) {
	b.ref(b.emit(ir.Jump{Target: ir.Unresolved}), ir.FieldTarget, l)
}

func (b *builder) fail(err *CompileError) { b.errs = append(b.errs, err) }

// resolve patches every recorded fixup. An unbound label is a compiler
// bug, reported as ErrUnresolvedTarget rather than a panic.
func (b *builder) resolve() {
	for _, f := range b.fixups {
		addr := b.labels[f.label]
		if addr == ir.Unresolved {
			b.fail(&CompileError{
				Code:    ErrUnresolvedTarget,
				Message: fmt.Sprintf("%04d %s: %s target never bound", f.addr, b.instrs[f.addr].Op(), f.field),
			})
			continue
		}
		ins, err := ir.Retarget(b.instrs[f.addr], f.field, addr)
		if err != nil {
			b.fail(&CompileError{Code: ErrUnresolvedTarget, Message: err.Error()})
			continue
		}
		b.instrs[f.addr] = ins
	}
}

type regionKind int

const (
	regionTop regionKind = iota
	regionLoop
	regionWhile
	regionTry
	regionCatch
)

// region is the innermost structured construct a path is compiled in. It
// decides what a path that stops short of an End does.
type region struct {
	kind   regionKind
	parent *region

	// Loop and While: the header node, its back-edge label (LoopNext or
	// WhileCheck) and the label after the loop.
	header string
	next   label
	end    label

	// Try and Catch: the node both branches continue at, its label and
	// whether any path of the branch falls through to it.
	join    string
	after   label
	reached bool
}

func (r *region) isLoop() bool { return r.kind == regionLoop || r.kind == regionWhile }

// encloses reports whether r is inner or one of inner's ancestors.
func (r *region) encloses(inner *region) bool {
	for x := inner; x != nil; x = x.parent {
		if x == r {
			return true
		}
	}
	return false
}

// scenarioCompiler emits one scenario.
type scenarioCompiler struct {
	b        *builder
	project  *graph.Project
	scenario *graph.Scenario

	emitted  map[string]int
	regionOf map[string]*region
	failed   bool
}

func newScenarioCompiler(b *builder, p *graph.Project, s *graph.Scenario) *scenarioCompiler {
	return &scenarioCompiler{
		b:        b,
		project:  p,
		scenario: s,
		emitted:  make(map[string]int),
		regionOf: make(map[string]*region),
	}
}

func (c *scenarioCompiler) fail(nodeID, code, format string, args ...any) {
	c.failed = true
	c.b.fail(&CompileError{
		Code:       code,
		ScenarioID: c.scenario.ID,
		NodeID:     nodeID,
		Message:    fmt.Sprintf(format, args...),
	})
}

// compile emits the scenario and returns the address it starts at.
func (c *scenarioCompiler) compile() (int, bool) {
	ids := make(map[string]bool, len(c.scenario.Nodes))
	for _, n := range c.scenario.Nodes {
		if ids[n.ID] {
			c.fail(n.ID, ErrInvalidActivity, "duplicate node id")
		}
		ids[n.ID] = true
		if n.Activity == nil {
			c.fail(n.ID, ErrInvalidActivity, "node has no activity")
		}
	}
	for _, conn := range c.scenario.Connections {
		if !ids[conn.FromNode] {
			c.fail("", ErrDanglingEdge, "connection %s references missing source node %s", conn.ID, conn.FromNode)
		}
		if !ids[conn.ToNode] {
			c.fail("", ErrDanglingEdge, "connection %s references missing target node %s", conn.ID, conn.ToNode)
		}
	}
	if c.failed {
		return 0, false
	}

	start, ok := c.scenario.StartNode()
	if !ok {
		c.fail("", ErrMissingStart, "scenario has no Start node")
		return 0, false
	}

	c.compilePath(start.ID, &region{kind: regionTop}, "")
	if c.failed {
		return 0, false
	}
	return c.emitted[start.ID], true
}

func (c *scenarioCompiler) successor(id string, branch graph.BranchType) string {
	next, _ := c.scenario.Successor(id, branch)
	return next
}

// compilePath emits the chain of nodes starting at id inside r. from is
// the node whose edge led here, used when the chain is empty.
func (c *scenarioCompiler) compilePath(id string, r *region, from string) {
	for {
		if id == "" {
			c.deadEnd(r, from)
			return
		}
		if c.exitRegion(id, r) {
			return
		}
		if addr, ok := c.emitted[id]; ok {
			c.jumpTo(id, addr, r, from)
			return
		}

		node, _ := c.scenario.Node(id)
		c.emitted[id] = c.b.here()
		c.regionOf[id] = r

		if _, ok := node.Activity.(graph.Note); ok {
			from, id = id, c.successor(id, graph.BranchDefault)
			continue
		}

		c.b.emit(ir.DebugMarker{NodeID: node.ID, Description: node.Activity.Describe()})
		next, cont := c.lower(node, r)
		if !cont {
			return
		}
		from, id = node.ID, next
	}
}

// exitRegion handles an edge that leaves an enclosing construct: a
// back-edge to a loop header, or the continuation node of a TryCatch.
// Handlers of every try branch left on the way are popped first.
func (c *scenarioCompiler) exitRegion(id string, r *region) bool {
	pops := 0
	for x := r; x != nil; x = x.parent {
		if x.kind == regionTry {
			pops++
		}
		switch {
		case x.isLoop() && x.header == id:
			c.popHandlers(pops)
			c.b.jump(x.next)
			return true
		case (x.kind == regionTry || x.kind == regionCatch) && x.join == id:
			c.popHandlers(pops)
			x.reached = true
			c.b.jump(x.after)
			return true
		}
	}
	return false
}

// jumpTo links to an already emitted node. Entering a try branch from
// outside would skip its PushErrorHandler and entering a loop body would
// skip its LoopInit or WhileCheck, so both are only allowed when the
// target is an End.
func (c *scenarioCompiler) jumpTo(id string, addr int, r *region, from string) {
	target := c.regionOf[id]
	node, _ := c.scenario.Node(id)
	if _, isEnd := node.Activity.(graph.End); !isEnd {
		for x := target; x != nil && !x.encloses(r); x = x.parent {
			switch {
			case x.kind == regionTry:
				c.fail(from, ErrJumpIntoTryRegion, "edge to %s enters a try branch from outside", id)
				return
			case x.isLoop():
				c.fail(from, ErrJumpIntoLoopBody, "edge to %s enters the body of loop %s from outside", id, x.header)
				return
			}
		}
	}

	pops := 0
	for x := r; x != nil && !x.encloses(target); x = x.parent {
		if x.kind == regionTry {
			pops++
		}
	}
	c.popHandlers(pops)
	c.b.emit(ir.Jump{Target: addr})
}

// deadEnd closes a path that stopped without an End.
func (c *scenarioCompiler) deadEnd(r *region, from string) {
	switch r.kind {
	case regionLoop, regionWhile:
		c.b.jump(r.next)
	case regionTry:
		c.b.emit(ir.PopErrorHandler{})
		r.reached = true
		c.b.jump(r.after)
	case regionCatch:
		r.reached = true
		c.b.jump(r.after)
	default:
		c.fail(from, ErrDeadEnd, "path ends without reaching End")
	}
}

func (c *scenarioCompiler) popHandlers(n int) {
	for range n {
		c.b.emit(ir.PopErrorHandler{})
	}
}

// innermostLoop returns the nearest loop region and how many try
// branches lie between it and r.
func innermostLoop(r *region) (*region, int) {
	pops := 0
	for x := r; x != nil; x = x.parent {
		if x.isLoop() {
			return x, pops
		}
		if x.kind == regionTry {
			pops++
		}
	}
	return nil, 0
}

// lower emits one node after its marker. It returns the node to continue
// with and whether the current path continues at all.
func (c *scenarioCompiler) lower(node *graph.Node, r *region) (string, bool) {
	def := c.successor(node.ID, graph.BranchDefault)
	if _, ok := c.scenario.Successor(node.ID, graph.BranchError); ok && !graph.CanHaveErrorOutput(node.Activity) {
		c.fail(node.ID, ErrInvalidActivity, "%s cannot have an error branch", node.Activity.Kind())
		return "", false
	}

	switch a := node.Activity.(type) {
	case graph.Start:
		c.b.emit(ir.Start{ScenarioID: c.scenario.ID})
		return def, true

	case graph.End:
		c.b.emit(ir.End{ScenarioID: c.scenario.ID})
		return "", false

	case graph.Log:
		level, err := runlog.ParseLevel(a.Level)
		if err != nil {
			c.fail(node.ID, ErrInvalidActivity, "%v", err)
			return "", false
		}
		msg, ok := c.template(node.ID, a.Message)
		if !ok {
			return "", false
		}
		c.b.emit(ir.Log{Level: level, Message: msg})
		return def, true

	case graph.Delay:
		if a.Milliseconds < 0 {
			c.fail(node.ID, ErrInvalidActivity, "negative delay %d ms", a.Milliseconds)
			return "", false
		}
		c.b.emit(ir.Delay{Milliseconds: a.Milliseconds})
		return def, true

	case graph.SetVariable:
		return c.lowerSetVariable(node, a, def)

	case graph.Evaluate:
		e, ok := c.expression(node.ID, a.Expression)
		if !ok {
			return "", false
		}
		c.b.emit(ir.Evaluate{Expr: e})
		return def, true

	case graph.IfCondition:
		return c.lowerIf(node, a, r, def)

	case graph.Loop:
		return c.lowerLoop(node, a, r, def)

	case graph.While:
		return c.lowerWhile(node, a, r, def)

	case graph.Break:
		loop, pops := innermostLoop(r)
		if loop == nil {
			c.fail(node.ID, ErrOutsideLoop, "Break outside of a loop")
			return "", false
		}
		c.popHandlers(pops)
		c.b.ref(c.b.emit(ir.LoopBreak{EndTarget: ir.Unresolved}), ir.FieldEnd, loop.end)
		return "", false

	case graph.Continue:
		loop, pops := innermostLoop(r)
		if loop == nil {
			c.fail(node.ID, ErrOutsideLoop, "Continue outside of a loop")
			return "", false
		}
		c.popHandlers(pops)
		c.b.ref(c.b.emit(ir.LoopContinue{CheckTarget: ir.Unresolved}), ir.FieldCheck, loop.next)
		return "", false

	case graph.TryCatch:
		return c.lowerTryCatch(node, r, def)

	case graph.CallScenario:
		if _, ok := c.project.Scenario(a.ScenarioID); !ok {
			c.fail(node.ID, ErrUnknownScenario, "unknown scenario %q", a.ScenarioID)
			return "", false
		}
		params := append([]graph.Binding(nil), a.Parameters...)
		return c.guarded(node, r, def, ir.CallScenario{ScenarioID: a.ScenarioID, Parameters: params})

	case graph.RunPowershell:
		return c.guarded(node, r, def, ir.RunPowershell{Code: a.Code})
	}

	c.fail(node.ID, ErrInvalidActivity, "unsupported activity %T", node.Activity)
	return "", false
}

func (c *scenarioCompiler) expression(nodeID, src string) (*expr.Expression, bool) {
	e, err := expr.Compile(src)
	if err != nil {
		c.fail(nodeID, ErrBadExpression, "invalid expression %q: %v", src, err)
		return nil, false
	}
	return e, true
}

func (c *scenarioCompiler) template(nodeID, src string) (*expr.Expression, bool) {
	e, err := expr.CompileTemplate(src)
	if err != nil {
		c.fail(nodeID, ErrBadExpression, "invalid message %q: %v", src, err)
		return nil, false
	}
	return e, true
}

func (c *scenarioCompiler) lowerSetVariable(node *graph.Node, a graph.SetVariable, def string) (string, bool) {
	if !expr.IsValidName(a.Name) {
		c.fail(node.ID, ErrInvalidActivity, "invalid variable name %q", a.Name)
		return "", false
	}
	kind, err := expr.ParseKind(a.VarType)
	if err != nil {
		c.fail(node.ID, ErrInvalidActivity, "%v", err)
		return "", false
	}

	var (
		value *expr.Expression
		ok    bool
	)
	if kind == expr.KindString {
		value, ok = c.template(node.ID, a.Value)
	} else {
		value, ok = c.expression(node.ID, a.Value)
	}
	if !ok {
		return "", false
	}

	scope := variables.ScopeScenario
	if a.IsGlobal {
		scope = variables.ScopeGlobal
	}
	c.b.emit(ir.SetVar{Name: a.Name, Scope: scope, Type: kind, Value: value})
	return def, true
}

// lowerIf emits
//
//	JUMP_IF_NOT cond -> false
//	<true path>
//	false: <false path>
//
// A missing branch continues at the If's Default successor.
func (c *scenarioCompiler) lowerIf(node *graph.Node, a graph.IfCondition, r *region, def string) (string, bool) {
	cond, ok := c.expression(node.ID, a.Condition)
	if !ok {
		return "", false
	}
	falseL := c.b.newLabel()
	c.b.ref(c.b.emit(ir.JumpIfNot{Cond: cond, Target: ir.Unresolved}), ir.FieldTarget, falseL)

	c.compilePath(c.branchOr(node.ID, graph.BranchTrue, def), r, node.ID)
	c.b.bind(falseL)
	c.compilePath(c.branchOr(node.ID, graph.BranchFalse, def), r, node.ID)
	return "", false
}

func (c *scenarioCompiler) branchOr(id string, branch graph.BranchType, fallback string) string {
	if next := c.successor(id, branch); next != "" {
		return next
	}
	return fallback
}

// lowerLoop emits
//
//	LOOP_INIT, LOOP_LOG
//	check: LOOP_CHECK body end
//	<body>
//	next:  LOOP_NEXT -> check
//	end:   <Default successor>
func (c *scenarioCompiler) lowerLoop(node *graph.Node, a graph.Loop, r *region, def string) (string, bool) {
	if !expr.IsValidName(a.Index) {
		c.fail(node.ID, ErrInvalidActivity, "invalid loop index name %q", a.Index)
		return "", false
	}
	body := c.successor(node.ID, graph.BranchLoopBody)
	if body == "" {
		return def, true
	}

	c.b.emit(ir.LoopInit{Index: a.Index, Start: a.Start})
	c.b.emit(ir.LoopLog{Index: a.Index, Start: a.Start, End: a.End, Step: a.Step})

	loop := &region{kind: regionLoop, parent: r, header: node.ID, next: c.b.newLabel(), end: c.b.newLabel()}
	check := c.b.emit(ir.LoopCheck{
		Index:      a.Index,
		Start:      a.Start,
		End:        a.End,
		Step:       a.Step,
		BodyTarget: c.b.here() + 1,
		EndTarget:  ir.Unresolved,
	})
	c.b.ref(check, ir.FieldEnd, loop.end)

	c.compilePath(body, loop, node.ID)

	c.b.bind(loop.next)
	c.b.emit(ir.LoopNext{Index: a.Index, Step: a.Step, CheckTarget: check})
	c.b.bind(loop.end)
	return def, true
}

// lowerWhile emits
//
//	check: WHILE_CHECK cond body end
//	<body>
//	end:   <Default successor>
func (c *scenarioCompiler) lowerWhile(node *graph.Node, a graph.While, r *region, def string) (string, bool) {
	cond, ok := c.expression(node.ID, a.Condition)
	if !ok {
		return "", false
	}
	body := c.successor(node.ID, graph.BranchLoopBody)
	if body == "" {
		return def, true
	}

	loop := &region{kind: regionWhile, parent: r, header: node.ID, next: c.b.newLabel(), end: c.b.newLabel()}
	c.b.bind(loop.next)
	check := c.b.emit(ir.WhileCheck{Cond: cond, BodyTarget: c.b.here() + 1, EndTarget: ir.Unresolved})
	c.b.ref(check, ir.FieldEnd, loop.end)

	c.compilePath(body, loop, node.ID)

	c.b.bind(loop.end)
	return def, true
}

// lowerTryCatch emits
//
//	PUSH_HANDLER catch
//	<try path>     (falling off: POP_HANDLER; JUMP after)
//	catch: <catch path>  (falling off: JUMP after)
//	after: <continuation>
//
// The continuation is the Default successor or, without one, the first
// node the try and catch paths have in common. When every path of both
// branches ends at an End, nothing follows the TryCatch.
func (c *scenarioCompiler) lowerTryCatch(node *graph.Node, r *region, def string) (string, bool) {
	tryStart := c.successor(node.ID, graph.BranchTry)
	catchStart := c.successor(node.ID, graph.BranchCatch)
	join := def
	if join == "" {
		join = c.joinNode(tryStart, catchStart)
	}

	catchL, afterL := c.b.newLabel(), c.b.newLabel()
	c.b.ref(c.b.emit(ir.PushErrorHandler{CatchTarget: ir.Unresolved}), ir.FieldCatch, catchL)

	try := &region{kind: regionTry, parent: r, join: join, after: afterL}
	catch := &region{kind: regionCatch, parent: r, join: join, after: afterL}
	c.compilePath(tryStart, try, node.ID)
	c.b.bind(catchL)
	c.compilePath(catchStart, catch, node.ID)
	c.b.bind(afterL)
	return join, try.reached || catch.reached
}

// guarded emits ins, wrapped in a handler when the node has an
// ErrorBranch:
//
//	PUSH_HANDLER err
//	<ins>
//	POP_HANDLER
//	<Default path>
//	err: <error path>
func (c *scenarioCompiler) guarded(node *graph.Node, r *region, def string, ins ir.Instruction) (string, bool) {
	onError := c.successor(node.ID, graph.BranchError)
	if onError == "" {
		c.b.emit(ins)
		return def, true
	}
	errL := c.b.newLabel()
	c.b.ref(c.b.emit(ir.PushErrorHandler{CatchTarget: ir.Unresolved}), ir.FieldCatch, errL)
	c.b.emit(ins)
	c.b.emit(ir.PopErrorHandler{})
	c.compilePath(def, r, node.ID)
	c.b.bind(errL)
	return onError, true
}

// joinNode returns the first node, in breadth-first order from the try
// branch, that the catch branch can also reach.
func (c *scenarioCompiler) joinNode(tryStart, catchStart string) string {
	if tryStart == "" || catchStart == "" {
		return ""
	}
	fromCatch := c.reachable(catchStart)
	for _, id := range c.bfs(tryStart) {
		if fromCatch[id] {
			return id
		}
	}
	return ""
}

func (c *scenarioCompiler) reachable(from string) map[string]bool {
	seen := make(map[string]bool)
	for _, id := range c.bfs(from) {
		seen[id] = true
	}
	return seen
}

func (c *scenarioCompiler) bfs(from string) []string {
	seen := map[string]bool{from: true}
	order := []string{from}
	for i := 0; i < len(order); i++ {
		for _, conn := range c.scenario.Outgoing(order[i]) {
			if !seen[conn.ToNode] {
				seen[conn.ToNode] = true
				order = append(order, conn.ToNode)
			}
		}
	}
	return order
}
