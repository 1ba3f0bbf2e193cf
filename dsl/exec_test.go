package dsl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/everydev1618/goconvo/schema"
)

func quietContext(opts ...ContextOption) *Context {
	base := []ContextOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOutput(io.Discard),
	}
	return NewContext(append(base, opts...)...)
}

func findFunction(t *testing.T, msgs []*Message, name string) *Function {
	t.Helper()
	for _, m := range msgs {
		if m.Fn != nil && m.Fn.Name == name {
			return m.Fn
		}
	}
	t.Fatalf("function %q not found", name)
	return nil
}

// runDo evaluates body as a top-level do block.
func runDo(t *testing.T, c *Context, body string) (any, error) {
	t.Helper()
	msgs := mustParse(t, "> do\n"+body+"\n")
	return c.ExecuteTopLevel(msgs[0].Fn)
}

func await(v any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	f, ok := v.(*Future)
	if !ok {
		return v, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestIfElifElse(t *testing.T) {
	tests := []struct {
		name string
		cond string
		want float64
	}{
		{"elif branch", "if(false) then(return(1)) elif(true) then(return(2)) else(return(3))", 2},
		{"if branch", "if(true) then(return(1)) elif(true) then(return(2)) else(return(3))", 1},
		{"else branch", "if(false) then(return(1)) elif(false) then(return(2)) else(return(3))", 3},
		{"no else", "if(false) then(return(1))\nreturn(4)", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := mustParse(t, "> pick() -> (\n    "+tt.cond+"\n)\n")
			c := quietContext()
			v, err := c.ExecuteFunction(findFunction(t, msgs, "pick"), nil)
			if err != nil {
				t.Fatalf("ExecuteFunction() error: %v", err)
			}
			if v != tt.want {
				t.Errorf("result = %v, want %v", v, tt.want)
			}
		})
	}
}

func TestIfBranchSideEffects(t *testing.T) {
	c := quietContext()
	_, err := runDo(t, c, `
taken = []
if(eq(1 2)) then(taken = add(taken ["a"]))
elif(eq(2 2)) then(taken = add(taken ["b"]))
else(taken = add(taken ["c"]))
if(true) then(taken = add(taken ["d"])) else(taken = add(taken ["e"]))
`)
	if err != nil {
		t.Fatalf("runDo() error: %v", err)
	}
	got, _ := c.Shared("taken")
	if want := []any{"b", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("taken = %v, want %v", got, want)
	}
}

func TestWhileRunsBodyNTimes(t *testing.T) {
	for _, n := range []float64{0, 1, 5} {
		c := quietContext(WithSharedVars(map[string]any{"n": n}))
		_, err := runDo(t, c, "i = 0\ncount = 0\nwhile(lt(i n) inc(count) inc(i))")
		if err != nil {
			t.Fatalf("n=%v: runDo() error: %v", n, err)
		}
		if got, _ := c.Shared("count"); got != n {
			t.Errorf("n=%v: count = %v", n, got)
		}
	}
}

func TestBreakHaltsLoops(t *testing.T) {
	tests := []struct {
		name string
		body string
		want any
	}{
		{
			"while",
			"i = 0\nout = []\nwhile(true if(eq(i 3)) then(break) out = add(out [i]) inc(i))",
			[]any{0.0, 1.0, 2.0},
		},
		{
			"foreach",
			"out = []\nforeach(x = in([1 2 3 4]) if(eq(x 3)) then(break) out = add(out [x]))",
			[]any{1.0, 2.0},
		},
		{
			"bare keyword",
			"out = []\nforeach(x = in([5 6 7]) out = add(out [x]) break)",
			[]any{5.0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := quietContext()
			if _, err := runDo(t, c, tt.body); err != nil {
				t.Fatalf("runDo() error: %v", err)
			}
			got, _ := c.Shared("out")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("out = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForeachArrayOrder(t *testing.T) {
	c := quietContext()
	_, err := runDo(t, c, `out = []
foreach(item = in(["a" "b" "c"]) out = add(out [item]))`)
	if err != nil {
		t.Fatalf("runDo() error: %v", err)
	}
	got, _ := c.Shared("out")
	if want := []any{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("out = %v, want %v", got, want)
	}
}

func TestForeachObjectPairs(t *testing.T) {
	c := quietContext()
	_, err := runDo(t, c, `keys = []
total = 0
foreach(e = in({b:2 a:1 c:3}) keys = add(keys [e.key]) total = add(total e.value))`)
	if err != nil {
		t.Fatalf("runDo() error: %v", err)
	}
	keys, _ := c.Shared("keys")
	if want := []any{"a", "b", "c"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	if total, _ := c.Shared("total"); total != 6.0 {
		t.Errorf("total = %v, want 6", total)
	}
}

func TestNestedForeach(t *testing.T) {
	c := quietContext()
	_, err := runDo(t, c, `pairs = []
foreach(a = in([1 2]) foreach(b = in(["x" "y"]) pairs = add(pairs [md(a b)])))`)
	if err != nil {
		t.Fatalf("runDo() error: %v", err)
	}
	got, _ := c.Shared("pairs")
	if want := []any{"1x", "1y", "2x", "2y"}; !reflect.DeepEqual(got, want) {
		t.Errorf("pairs = %v, want %v", got, want)
	}
}

const layeredSrc = `> level3(n:number) -> (
    return(%s)
)
> level2(n:number) -> (
    v = level3(n:n)
    return(md("level2:" v))
)
> level1(n:number) -> (
    return("level1 {{level2(n:add(n 1))}}")
)
`

func TestSuspensionMatchesSync(t *testing.T) {
	run := func(inner string) (any, *Context) {
		msgs := mustParse(t, strings.Replace(layeredSrc, "%s", inner, 1))
		c := quietContext()
		if err := c.LoadFunctions(msgs, nil); err != nil {
			t.Fatalf("LoadFunctions() error: %v", err)
		}
		v, err := await(c.ExecuteFunction(findFunction(t, msgs, "level1"), map[string]any{"n": 1}))
		if err != nil {
			t.Fatalf("ExecuteFunction() error: %v", err)
		}
		return v, c
	}

	syncValue, _ := run("mul(n 10)")
	asyncValue, c := run("sleep(5 mul(n 10))")
	if syncValue != "level1 level2:20" {
		t.Errorf("sync result = %v", syncValue)
	}
	if asyncValue != syncValue {
		t.Errorf("async result = %v, want %v", asyncValue, syncValue)
	}
	if n := c.Suspended(); n != 0 {
		t.Errorf("Suspended() = %d after completion, want 0", n)
	}
}

func TestSuspendedStatementReturnsFuture(t *testing.T) {
	c := quietContext()
	v, err := runDo(t, c, "x = sleep(50 41)\nadd(x 1)")
	if err != nil {
		t.Fatalf("runDo() error: %v", err)
	}
	f, ok := v.(*Future)
	if !ok {
		t.Fatalf("result = %T, want *Future", v)
	}
	if c.Suspended() == 0 {
		t.Error("Suspended() = 0 while waiting")
	}
	got, err := await(f, nil)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if got != 42.0 {
		t.Errorf("result = %v, want 42", got)
	}
	if n := c.Suspended(); n != 0 {
		t.Errorf("Suspended() = %d, want 0", n)
	}
}

func TestSuspensionInsideLoop(t *testing.T) {
	c := quietContext()
	v, err := runDo(t, c, `out = []
foreach(x = in([1 2 3]) out = add(out [sleep(1 mul(x 2))]))
out`)
	got, err := await(v, err)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if want := []any{2.0, 4.0, 6.0}; !reflect.DeepEqual(got, want) {
		t.Errorf("out = %v, want %v", got, want)
	}
}

func TestRejectedFuturePropagates(t *testing.T) {
	errBoom := errors.New("boom")
	msgs := mustParse(t, "> fetch(id:string)\n> do\nr = fetch(id:\"a\")\nadd(r 1)\n")
	c := quietContext(WithExterns(map[string]ExternFunc{
		"fetch": func(c *Context, args map[string]any) (any, error) {
			f := NewFuture()
			time.AfterFunc(time.Millisecond, func() { f.Reject(errBoom) })
			return f, nil
		},
	}))
	_, err := await(c.Run(msgs))
	if !errors.Is(err, errBoom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if n := c.Suspended(); n != 0 {
		t.Errorf("Suspended() = %d after rejection, want 0", n)
	}
}

func TestAddArgsValidation(t *testing.T) {
	msgs := mustParse(t, "> add(a:number b:number) -> (return(add(a b)))\n")
	fn := findFunction(t, msgs, "add")
	c := quietContext()

	v, err := c.ExecuteFunction(fn, map[string]any{"a": 3, "b": 4})
	if err != nil {
		t.Fatalf("ExecuteFunction() error: %v", err)
	}
	if v != 7.0 {
		t.Errorf("add(3 4) = %v, want 7", v)
	}

	_, err = c.ExecuteFunction(fn, map[string]any{"a": 3})
	if !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("error = %v, want ErrInvalidArgs", err)
	}
	var ee *ExecError
	if !errors.As(err, &ee) || ee.Fn != fn {
		t.Errorf("ExecError.Fn = %v, want add", ee)
	}
}

func TestPositionalArgs(t *testing.T) {
	const fns = "> g(a:number b:number) -> (return(sub(a b)))\n> one(x:number) -> (x)\n"
	tests := []struct {
		name    string
		call    string
		want    any
		wantErr bool
	}{
		{"declaration order", "g(3 4)", -1.0, false},
		{"fills unlabeled slots", "g(b:10 4)", -6.0, false},
		{"object merged", "g({a:5} 1)", 4.0, false},
		{"too many", "one(1 2)", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := mustParse(t, fns+"> do\n"+tt.call+"\n")
			got, err := quietContext().Run(msgs)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgs) || !strings.Contains(err.Error(), "label") {
					t.Errorf("%s error = %v, want ErrInvalidArgs asking for labels", tt.call, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s error: %v", tt.call, err)
			}
			if got != tt.want {
				t.Errorf("%s = %v, want %v", tt.call, got, tt.want)
			}
		})
	}
}

func TestEnumArgsValidation(t *testing.T) {
	msgs := mustParse(t, "> rate(mood:enum('fun' 'boring')) -> (return(mood))\n")
	fn := findFunction(t, msgs, "rate")
	c := quietContext()
	tests := []struct {
		mood    string
		wantErr bool
	}{
		{"fun", false},
		{"boring", false},
		{"cats", true},
	}
	for _, tt := range tests {
		t.Run(tt.mood, func(t *testing.T) {
			v, err := c.ExecuteFunction(fn, map[string]any{"mood": tt.mood})
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgs) {
					t.Errorf("error = %v, want ErrInvalidArgs", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExecuteFunction() error: %v", err)
			}
			if v != tt.mood {
				t.Errorf("result = %v, want %v", v, tt.mood)
			}
		})
	}
}

func TestReturnValidation(t *testing.T) {
	msgs := mustParse(t, "> count() -> number (return(\"many\"))\n> ok() -> int (return(3))\n> lost() -> Missing (1)\n")
	c := quietContext()

	_, err := c.ExecuteFunction(findFunction(t, msgs, "count"), nil)
	if !errors.Is(err, ErrInvalidReturnValue) {
		t.Errorf("count error = %v, want ErrInvalidReturnValue", err)
	}
	if v, err := c.ExecuteFunction(findFunction(t, msgs, "ok"), nil); err != nil || v != 3.0 {
		t.Errorf("ok() = %v, %v", v, err)
	}
	if _, err := c.ExecuteFunction(findFunction(t, msgs, "lost"), nil); !errors.Is(err, ErrReturnTypeNotDefined) {
		t.Errorf("lost error = %v, want ErrReturnTypeNotDefined", err)
	}
}

func TestParamTypeArgs(t *testing.T) {
	src := `> define
Person = map(name:string age?:int)
Label = "not a type"

> greet(Person) -> (return("hi {{args.name}}"))
> broken(Missing) -> (1)
> wrong(Label) -> (1)
`
	msgs := mustParse(t, src)
	c := quietContext()
	if _, err := c.Run(msgs); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	v, err := c.ExecuteFunction(findFunction(t, msgs, "greet"), map[string]any{"name": "Ada", "extra": true})
	if err != nil {
		t.Fatalf("greet error: %v", err)
	}
	if v != "hi Ada" {
		t.Errorf("greet = %v", v)
	}
	if _, err := c.ExecuteFunction(findFunction(t, msgs, "greet"), map[string]any{"age": 3}); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("greet without name error = %v, want ErrInvalidArgs", err)
	}
	if _, err := c.ExecuteFunction(findFunction(t, msgs, "broken"), nil); !errors.Is(err, ErrArgsTypeNotDefined) {
		t.Errorf("broken error = %v, want ErrArgsTypeNotDefined", err)
	}
	if _, err := c.ExecuteFunction(findFunction(t, msgs, "wrong"), nil); !errors.Is(err, ErrArgsTypeNotAnObject) {
		t.Errorf("wrong error = %v, want ErrArgsTypeNotAnObject", err)
	}
}

func TestArgsSchemaCached(t *testing.T) {
	msgs := mustParse(t, "> f(a:string) -> (a)\n")
	fn := findFunction(t, msgs, "f")
	c := quietContext()
	first, err := c.ArgsSchema(fn)
	if err != nil {
		t.Fatalf("ArgsSchema() error: %v", err)
	}
	second, _ := c.ArgsSchema(fn)
	if !reflect.DeepEqual(first, second) {
		t.Error("ArgsSchema() not cached")
	}
	if _, err := first.Parse(map[string]any{"a": 1}); err == nil {
		t.Error("schema accepted a number for a string field")
	}
}

func TestSharedVisibility(t *testing.T) {
	msgs := mustParse(t, `> store() -> (
    @shared saved = 5
    scratch = 6
    add(saved scratch)
)
`)
	c := quietContext()
	if err := c.LoadFunctions(msgs, nil); err != nil {
		t.Fatalf("LoadFunctions() error: %v", err)
	}
	v, err := runDo(t, c, "store()")
	if err != nil {
		t.Fatalf("store() error: %v", err)
	}
	if v != 11.0 {
		t.Errorf("store() = %v, want 11", v)
	}
	if v, err := runDo(t, c, "saved"); err != nil || v != 5.0 {
		t.Errorf("saved = %v, %v; want 5", v, err)
	}
	if _, err := runDo(t, c, "scratch"); !errors.Is(err, ErrVariableNotDefined) {
		t.Errorf("scratch error = %v, want ErrVariableNotDefined", err)
	}
	if _, ok := c.SharedVars()["scratch"]; ok {
		t.Error("local assignment leaked into shared vars")
	}
}

func TestLocalArgsDoNotLeak(t *testing.T) {
	msgs := mustParse(t, "> twice(x:number) -> (\n    y = mul(x 2)\n    return(y)\n)\n")
	c := quietContext()
	if err := c.LoadFunctions(msgs, nil); err != nil {
		t.Fatal(err)
	}
	v, err := runDo(t, c, "x = 1\nr = twice(x:10)\nadd(x r)")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if v != 21.0 {
		t.Errorf("result = %v, want 21", v)
	}
	if _, ok := c.Shared("y"); ok {
		t.Error("function local y visible in shared table")
	}
}

func TestSharedSettersAndResultBlock(t *testing.T) {
	c := quietContext()
	if _, err := runDo(t, c, "a = 1\nb = \"two {{a}}\"\na = 3\nc = {x:[1 2]}"); err != nil {
		t.Fatalf("runDo() error: %v", err)
	}
	if got, want := c.SharedSetters(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SharedSetters() = %v, want %v", got, want)
	}
	block := c.ResultBlock()
	want := "> result\na = 3\nb = \"two 1\"\nc = {x:[1 2]}\n"
	if block != want {
		t.Errorf("ResultBlock() = %q, want %q", block, want)
	}

	restored := quietContext()
	if _, err := restored.Run(mustParse(t, block)); err != nil {
		t.Fatalf("Run(result) error: %v", err)
	}
	if got := restored.SharedVars(); !reflect.DeepEqual(got, c.SharedVars()) {
		t.Errorf("restored vars = %v, want %v", got, c.SharedVars())
	}

	c.ClearSharedSetters()
	if len(c.SharedSetters()) != 0 || c.ResultBlock() != "" {
		t.Error("ClearSharedSetters() left entries")
	}
}

func TestDottedAssignment(t *testing.T) {
	c := quietContext()
	_, err := runDo(t, c, "user = {name:\"a\" address:{city:\"x\"}}\nuser.address.city = \"y\"\nuser.name = \"b\"")
	if err != nil {
		t.Fatalf("runDo() error: %v", err)
	}
	user, _ := c.Shared("user")
	want := map[string]any{"name": "b", "address": map[string]any{"city": "y"}}
	if !reflect.DeepEqual(user, want) {
		t.Errorf("user = %v, want %v", user, want)
	}
	if _, err := runDo(t, c, "user.missing.city = 1"); !errors.Is(err, ErrVariableNotDefined) {
		t.Errorf("missing intermediate error = %v", err)
	}
	if v, err := runDo(t, c, "user.missing.city"); err != nil || v != nil {
		t.Errorf("missing path read = %v, %v; want undefined", v, err)
	}
}

func TestExecutionErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"undefined variable", "nothing", ErrVariableNotDefined},
		{"not a function", "x = 1\nx(2)", ErrNotAFunction},
		{"reserved name", "add = 1", ErrReservedName},
		{"reserved type", "string = 1", ErrReservedName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runDo(t, quietContext(), tt.body)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var ee *ExecError
			if !errors.As(err, &ee) || ee.Statement == nil {
				t.Errorf("error %v carries no statement", err)
			}
		})
	}
}

func TestMaxDepth(t *testing.T) {
	msgs := mustParse(t, "> loop(n:number) -> (return(loop(n:add(n 1))))\n")
	c := quietContext(WithMaxDepth(40))
	if err := c.LoadFunctions(msgs, nil); err != nil {
		t.Fatal(err)
	}
	_, err := c.ExecuteFunction(findFunction(t, msgs, "loop"), map[string]any{"n": 0})
	if !errors.Is(err, ErrMaxDepth) {
		t.Errorf("error = %v, want ErrMaxDepth", err)
	}
}

func TestLoadFunctions(t *testing.T) {
	msgs := mustParse(t, `> visible(a:number) -> (a)
> local hidden() -> (1)
> call visible(a:1)
> external(q:string)
> do
x = 1
`)
	c := quietContext()
	if err := c.LoadFunctions(msgs, nil); err != nil {
		t.Fatalf("LoadFunctions() error: %v", err)
	}
	for name, want := range map[string]bool{"visible": true, "hidden": false, "external": true, "do": false} {
		if _, ok := c.Function(name); ok != want {
			t.Errorf("Function(%q) registered = %v, want %v", name, ok, want)
		}
	}
	if _, err := runDo(t, c, "external(q:\"x\")"); !errors.Is(err, ErrFunctionNotDefined) {
		t.Errorf("missing extern error = %v, want ErrFunctionNotDefined", err)
	}

	reserved := mustParse(t, "> print(x:string) -> (x)\n")
	if err := quietContext().LoadFunctions(reserved, nil); !errors.Is(err, ErrReservedName) {
		t.Errorf("redefining a builtin error = %v, want ErrReservedName", err)
	}
}

func TestExternFunctions(t *testing.T) {
	msgs := mustParse(t, "> lookup(id:string)\n> do\nr = lookup(id:\"42\")\nr.name\n")
	var gotArgs map[string]any
	c := quietContext(WithExterns(map[string]ExternFunc{
		"lookup": func(c *Context, args map[string]any) (any, error) {
			gotArgs = args
			return ResolvedFuture(map[string]any{"name": "answer"}), nil
		},
	}))
	v, err := await(c.Run(msgs))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if v != "answer" {
		t.Errorf("result = %v, want answer", v)
	}
	if gotArgs["id"] != "42" {
		t.Errorf("extern args = %v", gotArgs)
	}
}

func TestProxyCalls(t *testing.T) {
	msgs := mustParse(t, "> sum(a:number b:number) -> (add(a b))\n> call sum(a:1)\n> call gone(a:1)\n")
	c := quietContext()
	if err := c.LoadFunctions(msgs, nil); err != nil {
		t.Fatal(err)
	}
	proxy := msgs[1].Fn

	if _, err := c.ExecuteFunction(proxy, nil); !errors.Is(err, ErrProxyCallNotSupported) {
		t.Errorf("ExecuteFunction(proxy) error = %v, want ErrProxyCallNotSupported", err)
	}
	v, err := await(c.ExecuteFunctionAsync(proxy, map[string]any{"b": 2}), nil)
	if err != nil {
		t.Fatalf("ExecuteFunctionAsync() error: %v", err)
	}
	if v != 3.0 {
		t.Errorf("proxy result = %v, want 3", v)
	}
	if _, err := await(c.ExecuteFunctionAsync(msgs[2].Fn, nil), nil); !errors.Is(err, ErrFunctionNotDefined) {
		t.Errorf("missing proxy target error = %v, want ErrFunctionNotDefined", err)
	}
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"sub(10 3 2)", 5.0},
		{"mul(2 3 4)", 24.0},
		{"div(9 2)", 4.5},
		{"mod(9 4)", 1.0},
		{"pow(2 10)", 1024.0},
		{"add(\"a\" 1 true)", "a1true"},
		{"add([1] [2 3])", []any{1.0, 2.0, 3.0}},
		{"add({a:1} {b:2})", map[string]any{"a": 1.0, "b": 2.0}},
		{"eq(\"a\" \"a\")", true},
		{"eq({a:[1]} {a:[1]})", true},
		{"neq(1 2)", true},
		{"gt(3 2)", true},
		{"gte(2 2)", true},
		{"lt(\"a\" \"b\")", true},
		{"lte(3 2)", false},
		{"and(true 1 \"x\")", true},
		{"and(true 0 nothing)", false},
		{"or(false 1 nothing)", true},
		{"or(false 0)", false},
		{"not(0)", true},
		{"not(\"x\")", false},
		{"md(\"n=\" 1.5 \" \" null)", "n=1.5 null"},
		{"toString(undefined)", ""},
		{"toJson({a:[1 \"b\"]})", `{"a":[1,"b"]}`},
		{"len(\"héllo\")", 5.0},
		{"len([1 2 3])", 3.0},
		{"len({a:1})", 1.0},
		{"isUndefined(undefined)", true},
		{"isUndefined(0)", false},
		{"isUndefined(neverAssigned)", true},
		{"do(1 2 3)", 3.0},
		{"if(true)", nil},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := runDo(t, quietContext(), tt.expr)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if !reflect.DeepEqual(v, tt.want) {
				t.Errorf("%s = %#v, want %#v", tt.expr, v, tt.want)
			}
		})
	}
}

func TestBuiltinErrors(t *testing.T) {
	for _, expr := range []string{"div(1 0)", "mod(1 0)", "sub(\"a\" 1)", "in(5)", "inc(3)", "eq(1)"} {
		t.Run(expr, func(t *testing.T) {
			if _, err := runDo(t, quietContext(), expr); err == nil {
				t.Errorf("%s: expected error", expr)
			}
		})
	}
}

func TestIncDec(t *testing.T) {
	c := quietContext()
	v, err := runDo(t, c, "n = 1\ninc(n)\ninc(n 5)\ndec(n)")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if v != 6.0 {
		t.Errorf("result = %v, want 6", v)
	}
}

func TestTypeValues(t *testing.T) {
	c := quietContext()
	v, err := runDo(t, c, "# A person\nmap(\n    # full name\n    name:string\n    age?:int\n    tags:array(string)\n)")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	tv, ok := v.(*schema.TypeValue)
	if !ok || tv.Kind != schema.KindMap {
		t.Fatalf("result = %#v, want map type value", v)
	}
	if tv.Description != "A person" {
		t.Errorf("Description = %q", tv.Description)
	}
	if len(tv.Fields) != 3 {
		t.Fatalf("len(Fields) = %d, want 3", len(tv.Fields))
	}
	if f := tv.Fields[0]; f.Name != "name" || f.Optional || f.Description != "full name" {
		t.Errorf("Fields[0] = %+v", f)
	}
	if f := tv.Fields[1]; f.Name != "age" || !f.Optional {
		t.Errorf("Fields[1] = %+v", f)
	}
	if arr, ok := tv.Fields[2].Type.(*schema.TypeValue); !ok || arr.Kind != schema.KindArray {
		t.Errorf("Fields[2].Type = %#v", tv.Fields[2].Type)
	}

	e, err := runDo(t, c, "# How it felt\nenum(\"fun\" \"boring\")")
	if err != nil {
		t.Fatalf("enum error: %v", err)
	}
	if ev := e.(*schema.TypeValue); ev.Kind != schema.KindEnum || ev.Description != "How it felt" || len(ev.Values) != 2 {
		t.Errorf("enum = %#v", ev)
	}

	data, err := runDo(t, c, "{a:1 b:\"x\"}")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := data.(map[string]any); !ok {
		t.Errorf("plain literal = %T, want map[string]any", data)
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	c := quietContext(WithOutput(&buf))
	if _, err := runDo(t, c, "name = \"convo\"\nprint(\"hello\" name 2)"); err != nil {
		t.Fatalf("error: %v", err)
	}
	if got := buf.String(); got != "hello convo 2\n" {
		t.Errorf("output = %q", got)
	}
}

func TestHostScopeFunction(t *testing.T) {
	c := quietContext(WithScopeFunction("twice", func(s *Scope, c *Context) (any, error) {
		n, _ := schema.ToFloat(s.Param(0))
		return n * 2, nil
	}, nil))
	v, err := runDo(t, c, "twice(21)")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if v != 42.0 {
		t.Errorf("twice(21) = %v", v)
	}
	if _, err := runDo(t, c, "twice = 1"); !errors.Is(err, ErrReservedName) {
		t.Errorf("overwrite error = %v, want ErrReservedName", err)
	}
}

func TestSuspendTwicePanics(t *testing.T) {
	c := quietContext()
	s := &Scope{s: &Statement{Fn: "x"}}
	c.suspend(s)
	defer func() {
		r := recover()
		ee, ok := r.(*ExecError)
		if !ok || !errors.Is(ee, ErrScopeAlreadySuspended) {
			t.Errorf("recover() = %v, want ErrScopeAlreadySuspended", r)
		}
	}()
	c.suspend(s)
}

func TestResumeMissingParentPanics(t *testing.T) {
	c := quietContext()
	defer func() {
		r := recover()
		ee, ok := r.(*ExecError)
		if !ok || !errors.Is(ee, ErrSuspensionParentNotFound) {
			t.Errorf("recover() = %v, want ErrSuspensionParentNotFound", r)
		}
	}()
	c.resumeFromChild("missing", &Scope{s: &Statement{}})
}
