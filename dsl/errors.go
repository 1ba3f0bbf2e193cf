package dsl

import "errors"

// Execution errors. They are wrapped in *ExecError carrying the offending
// statement, so test with errors.Is.
var (
	// ErrVariableNotDefined is returned when a reference names an unknown variable.
	ErrVariableNotDefined = errors.New("variable not defined")

	// ErrNotAFunction is returned when a call target is not callable.
	ErrNotAFunction = errors.New("not a function")

	// ErrInvalidArgs is returned when arguments fail the function's args schema.
	ErrInvalidArgs = errors.New("invalid arguments")

	// ErrInvalidReturnValue is returned when a result fails the return schema.
	ErrInvalidReturnValue = errors.New("invalid return value type")

	// ErrFunctionNotDefined is returned when a proxy target or extern is missing.
	ErrFunctionNotDefined = errors.New("function not defined")

	// ErrArgsTypeNotDefined is returned when a declared parameter type is unknown.
	ErrArgsTypeNotDefined = errors.New("function args type not defined")

	// ErrArgsTypeNotAnObject is returned when a declared parameter type is not a map type.
	ErrArgsTypeNotAnObject = errors.New("function args type is not an object")

	// ErrReturnTypeNotDefined is returned when a declared return type is unknown.
	ErrReturnTypeNotDefined = errors.New("function return type not defined")

	// ErrProxyCallNotSupported is returned by ExecuteFunction for proxy calls.
	ErrProxyCallNotSupported = errors.New("proxy calls require ExecuteFunctionAsync")

	// ErrReservedName is returned when a write targets a builtin slot.
	ErrReservedName = errors.New("name is reserved")

	// ErrMaxDepth is returned when evaluation nests deeper than the context allows.
	ErrMaxDepth = errors.New("maximum execution depth exceeded")

	// ErrNotSettled is returned by Future.Result before the future settles.
	ErrNotSettled = errors.New("future not settled")

	// ErrScopeAlreadySuspended and ErrSuspensionParentNotFound signal
	// interpreter bugs. They are raised as panics, never returned.
	ErrScopeAlreadySuspended    = errors.New("scope already suspended")
	ErrSuspensionParentNotFound = errors.New("suspension parent not found")
)

// ExecError wraps an execution error with the statement and function it
// occurred in.
type ExecError struct {
	Err       error
	Statement *Statement
	Fn        *Function
	Detail    string
}

func (e *ExecError) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Fn != nil {
		msg = "function " + e.Fn.Name + ": " + msg
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// execErr attaches st to err unless err already carries a statement.
func execErr(err error, st *Statement, detail string) error {
	var ee *ExecError
	if errors.As(err, &ee) {
		if ee.Statement == nil {
			ee.Statement = st
		}
		return err
	}
	return &ExecError{Err: err, Statement: st, Detail: detail}
}
