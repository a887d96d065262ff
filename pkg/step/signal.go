package step

// Signal is a control instruction returned by a block executor in place of a
// plain value. The interpreter switches exhaustively over the concrete
// signal types; a result that is not a Signal is a terminal value.
type Signal interface {
	controlSignal()
}

// Branch asks the interpreter to run the named statement slot of the
// signalling step. Missing slots run as empty lists.
type Branch struct {
	Slot string
}

// CountedLoop asks the interpreter to run the named slot Times times in
// sequence. A failing iteration stops the remaining ones.
type CountedLoop struct {
	Times int
	Slot  string
}

// CollectionLoop asks the interpreter to run the named slot once per item,
// rebinding Binding to the current item before each iteration. The last
// item's binding persists after the loop.
type CollectionLoop struct {
	Items   []any
	Binding string
	Slot    string
}

// TryCatch asks the interpreter to run the try slot and, if it fails, to
// swallow the failure and run the catch slot instead.
type TryCatch struct{}

// InlineExpand asks the interpreter to run a synthetic statement list in
// place, as the signalling step's own body.
type InlineExpand struct {
	Steps []*Node
}

// ProcedureCall asks the interpreter to bind Args into context variables
// and run the procedure body. With WantReturn, the first ProcedureReturn
// among the body's step outputs supplies the call's result; a non-empty
// Into additionally stores that result as a context variable.
type ProcedureCall struct {
	Name       string
	Args       map[string]any
	Procedure  *Procedure
	WantReturn bool
	Into       string
}

// ProcedureReturn stops the nearest enclosing procedure call and supplies
// its result. It bubbles through branch/loop/try frames and must never
// escape a procedure body as an ordinary value.
type ProcedureReturn struct {
	Value any
}

func (*Branch) controlSignal()          {}
func (*CountedLoop) controlSignal()     {}
func (*CollectionLoop) controlSignal()  {}
func (*TryCatch) controlSignal()        {}
func (*InlineExpand) controlSignal()    {}
func (*ProcedureCall) controlSignal()   {}
func (*ProcedureReturn) controlSignal() {}
