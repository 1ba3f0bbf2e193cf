package dsl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/everydev1618/goconvo/schema"
)

func mustParse(t *testing.T, src string) []*Message {
	t.Helper()
	res := Parse(src)
	if res.Err != nil {
		t.Fatalf("Parse() error: %v", res.Err)
	}
	return res.Messages
}

func TestNewParser(t *testing.T) {
	p := NewParser()
	if p.MaxDepth != DefaultMaxParseDepth {
		t.Errorf("MaxDepth = %d, want %d", p.MaxDepth, DefaultMaxParseDepth)
	}
	p = NewParser(WithMaxParseDepth(7))
	if p.MaxDepth != 7 {
		t.Errorf("MaxDepth = %d, want 7", p.MaxDepth)
	}
}

func TestParseContentMessages(t *testing.T) {
	src := `> system
You are a helpful assistant.

> user
What is the weather?
Answer briefly.
`
	msgs := mustParse(t, src)
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "You are a helpful assistant." {
		t.Errorf("messages[0] = %q %q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Content != "What is the weather?\nAnswer briefly." {
		t.Errorf("messages[1].Content = %q", msgs[1].Content)
	}
}

func TestParseContentIndentation(t *testing.T) {
	src := "  > user\n  hello\n    world\n"
	msgs := mustParse(t, src)
	if got := msgs[0].Content; got != "hello\n  world" {
		t.Errorf("Content = %q, want %q", got, "hello\n  world")
	}
}

func TestParseEscapedHeader(t *testing.T) {
	msgs := mustParse(t, "> user\nquote:\n\\> not a header\n")
	if len(msgs) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(msgs))
	}
	if got := msgs[0].Content; got != "quote:\n> not a header" {
		t.Errorf("Content = %q", got)
	}
}

func TestParseTemplateMessage(t *testing.T) {
	msgs := mustParse(t, "> user\nThe total is {{total}}!\n")
	st := msgs[0].Statement
	if st == nil {
		t.Fatal("Statement is nil")
	}
	if st.Fn != "md" || len(st.Params) != 3 {
		t.Fatalf("statement = %s, want md with 3 params", FormatStatement(st))
	}
	if st.Params[0].Value != "The total is " {
		t.Errorf("params[0] = %v", st.Params[0].Value)
	}
	if st.Params[1].Ref != "total" {
		t.Errorf("params[1].Ref = %q, want total", st.Params[1].Ref)
	}
	if st.Params[2].Value != "!" {
		t.Errorf("params[2] = %v", st.Params[2].Value)
	}
}

func TestParseFunction(t *testing.T) {
	src := `# Adds two numbers
@category math
> add(a:number b?:number) -> number (
    return(add(a b))
)
`
	msgs := mustParse(t, src)
	if len(msgs) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Role != "function" {
		t.Errorf("Role = %q, want function", msg.Role)
	}
	fn := msg.Fn
	if fn.Name != "add" {
		t.Errorf("Name = %q, want add", fn.Name)
	}
	if fn.Description != "Adds two numbers" {
		t.Errorf("Description = %q", fn.Description)
	}
	if v, ok := msg.Tag("category"); !ok || v != "math" {
		t.Errorf("Tag(category) = %q, %v", v, ok)
	}
	if fn.ReturnType != "number" {
		t.Errorf("ReturnType = %q, want number", fn.ReturnType)
	}
	if len(fn.Params) != 2 {
		t.Fatalf("len(Params) = %d, want 2", len(fn.Params))
	}
	if p := fn.Params[0]; p.Label != "a" || p.Ref != "number" || p.Opt {
		t.Errorf("Params[0] = %+v", p)
	}
	if p := fn.Params[1]; p.Label != "b" || !p.Opt {
		t.Errorf("Params[1] = %+v", p)
	}
	if len(fn.Body) != 1 || fn.Body[0].Fn != "return" {
		t.Fatalf("Body = %v", fn.Body)
	}
	inner := fn.Body[0].Params[0]
	if inner.Fn != "add" || len(inner.Params) != 2 || inner.Params[1].Ref != "b" {
		t.Errorf("inner call = %s", FormatStatement(inner))
	}
}

func TestParseFunctionModifiers(t *testing.T) {
	src := `> local helper(x:string) -> (x)
> call add(a:1 b:2)
> extern(id:string)
`
	msgs := mustParse(t, src)
	if len(msgs) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(msgs))
	}
	if fn := msgs[0].Fn; !fn.Local || fn.Name != "helper" || !fn.HasBody() {
		t.Errorf("local function = %+v", fn)
	}
	if fn := msgs[1].Fn; !fn.Call || fn.Name != "add" || fn.HasBody() || len(fn.Params) != 2 {
		t.Errorf("proxy call = %+v", fn)
	}
	if fn := msgs[2].Fn; fn.HasBody() || fn.Name != "extern" {
		t.Errorf("extern = %+v", fn)
	}
}

func TestParseParamType(t *testing.T) {
	msgs := mustParse(t, "> greet(Person) -> (args.name)\n@paramsName p\n> wave(Person) -> (p)\n")
	fn := msgs[0].Fn
	if fn.ParamType != "Person" || fn.ParamsName != "args" || len(fn.Params) != 0 {
		t.Errorf("greet = type %q name %q params %d", fn.ParamType, fn.ParamsName, len(fn.Params))
	}
	if got := msgs[1].Fn.ParamsName; got != "p" {
		t.Errorf("wave ParamsName = %q, want p", got)
	}
}

func TestParseTopLevelBlocks(t *testing.T) {
	src := `> define
Person = map(name:string)

> do
x = 1

> result
x = 2

> no result
`
	msgs := mustParse(t, src)
	want := []string{"define", "do", "result", "noResult"}
	if len(msgs) != len(want) {
		t.Fatalf("len(messages) = %d, want %d", len(msgs), len(want))
	}
	for i, name := range want {
		fn := msgs[i].Fn
		if fn == nil || !fn.TopLevel || fn.Name != name {
			t.Errorf("messages[%d] = %+v, want top-level %s", i, fn, name)
		}
	}
	if st := msgs[0].Fn.Body[0]; st.Set != "Person" || st.Fn != "map" {
		t.Errorf("define body = %s", FormatStatement(st))
	}
}

func TestParseLiteralSugar(t *testing.T) {
	msgs := mustParse(t, "> do\nx = {a:1, b:[1 2 3] \"c d\": true}\n")
	st := msgs[0].Fn.Body[0]
	if st.Fn != "map" || len(st.Params) != 3 {
		t.Fatalf("statement = %s", FormatStatement(st))
	}
	if st.Params[0].Label != "a" || st.Params[0].Value != 1.0 {
		t.Errorf("params[0] = %+v", st.Params[0])
	}
	arr := st.Params[1]
	if arr.Label != "b" || arr.Fn != "array" || len(arr.Params) != 3 {
		t.Errorf("params[1] = %s", FormatStatement(arr))
	}
	if st.Params[2].Label != "c d" || st.Params[2].Value != true {
		t.Errorf("params[2] = %+v", st.Params[2])
	}
}

func TestParseStrings(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"double", `"hello"`, "hello"},
		{"backslash escape", `"say \"hi\"\n"`, "say \"hi\"\n"},
		{"single", `'plain'`, "plain"},
		{"doubled quote", `'it''s'`, "it's"},
		{"escaped embed", `"\{{x}}"`, "{{x}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := mustParse(t, "> do\n"+tt.src+"\n")
			got := msgs[0].Fn.Body[0].Value
			if got != tt.want {
				t.Errorf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseStringIndentation(t *testing.T) {
	src := "    > do\n    x = \"line one\n    line two\"\n"
	msgs := mustParse(t, src)
	if got := msgs[0].Fn.Body[0].Value; got != "line one\nline two" {
		t.Errorf("value = %q", got)
	}
}

func TestParseStringEmbed(t *testing.T) {
	msgs := mustParse(t, "> do\nx = \"a {{inc(n) name}} b\"\n")
	st := msgs[0].Fn.Body[0]
	if st.Fn != "md" || st.Set != "x" {
		t.Fatalf("statement = %s", FormatStatement(st))
	}
	if len(st.Params) != 3 {
		t.Fatalf("len(params) = %d, want 3", len(st.Params))
	}
	embed := st.Params[1]
	if embed.Fn != "do" || len(embed.Params) != 2 {
		t.Errorf("embed = %s, want do with 2 params", FormatStatement(embed))
	}
}

func TestParseAssignmentsAndPaths(t *testing.T) {
	msgs := mustParse(t, "> do\na.b.c = user.name\nparts.first(1)\n")
	body := msgs[0].Fn.Body
	st := body[0]
	if st.Set != "a" || strings.Join(st.SetPath, ".") != "b.c" {
		t.Errorf("set = %q %v", st.Set, st.SetPath)
	}
	if st.Ref != "user" || strings.Join(st.RefPath, ".") != "name" {
		t.Errorf("ref = %q %v", st.Ref, st.RefPath)
	}
	if call := body[1]; call.FnName() != "parts.first" {
		t.Errorf("FnName() = %q", call.FnName())
	}
}

func TestParseKeywordsAndLiterals(t *testing.T) {
	msgs := mustParse(t, "> do\nbreak return true false null undefined -2.5 1e3\n")
	body := msgs[0].Fn.Body
	if len(body) != 8 {
		t.Fatalf("len(body) = %d, want 8", len(body))
	}
	if body[0].Keyword != "break" || body[1].Keyword != "return" {
		t.Errorf("keywords = %q %q", body[0].Keyword, body[1].Keyword)
	}
	if body[2].Value != true || body[3].Value != false {
		t.Errorf("booleans = %v %v", body[2].Value, body[3].Value)
	}
	if !schema.IsNull(body[4].Value) {
		t.Errorf("null = %v", body[4].Value)
	}
	if body[5].Value != nil || body[5].Kind() != KindValue {
		t.Errorf("undefined = %+v", body[5])
	}
	if body[6].Value != -2.5 || body[7].Value != 1000.0 {
		t.Errorf("numbers = %v %v", body[6].Value, body[7].Value)
	}
}

func TestParseCommentsAndTags(t *testing.T) {
	src := `> do
# the answer
@source guide
@shared answer = 42
`
	msgs := mustParse(t, src)
	st := msgs[0].Fn.Body[0]
	if st.Comment != "the answer" {
		t.Errorf("Comment = %q", st.Comment)
	}
	if v, ok := st.Tag("source"); !ok || v != "guide" {
		t.Errorf("Tag(source) = %q, %v", v, ok)
	}
	if !st.Shared || st.Set != "answer" || st.Value != 42.0 {
		t.Errorf("statement = %+v", st)
	}
}

func TestParseSourceSpans(t *testing.T) {
	src := "> do\nadd(1 2)\n"
	st := mustParse(t, src)[0].Fn.Body[0]
	if got := src[st.Start:st.End]; got != "add(1 2)" {
		t.Errorf("span = %q, want %q", got, "add(1 2)")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantMsg  string
		wantLine int
		keep     int
	}{
		{"unterminated string", "> user\nhi\n> do\nx = \"open\n", "unterminated string", 4, 1},
		{"unexpected closer", "> do\nadd(1 2))\n", "unexpected ')'", 2, 0},
		{"unclosed call", "> do\nadd(1 2\n", "unexpected end of input", 3, 0},
		{"missing header", "hello\n", "expected a message header", 1, 0},
		{"empty embed", "> do\n\"a {{}}\"\n", "empty embedded expression", 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.src)
			if res.Err == nil {
				t.Fatal("expected parse error")
			}
			if !strings.Contains(res.Err.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want it to contain %q", res.Err.Message, tt.wantMsg)
			}
			if res.Err.LineNumber != tt.wantLine {
				t.Errorf("LineNumber = %d, want %d", res.Err.LineNumber, tt.wantLine)
			}
			if !strings.Contains(res.Err.Near, "^") {
				t.Errorf("Near = %q, want a caret", res.Err.Near)
			}
			if len(res.Messages) != tt.keep {
				t.Errorf("len(messages) = %d, want %d", len(res.Messages), tt.keep)
			}
			if res.Error() == nil {
				t.Error("Error() = nil")
			}
		})
	}
}

func TestParseTemplateErrorLocation(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		want     byte
		wantLine int
	}{
		{"leading blank line", "> user\n\n   Hello {{ ) }}\n", ')', 3},
		{"indented continuation", "  > user\n  first\n    \\> quoted {{ ] }}\n", ']', 3},
		{"first line", "> user Hi {{ add(1 } }}\nmore\n", '}', 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.src)
			if res.Err == nil {
				t.Fatal("expected parse error")
			}
			if got := tt.src[res.Err.Index]; got != tt.want {
				t.Errorf("src[Index] = %q, want %q", got, tt.want)
			}
			if res.Err.LineNumber != tt.wantLine {
				t.Errorf("LineNumber = %d, want %d", res.Err.LineNumber, tt.wantLine)
			}
			caret := strings.Index(res.Err.Near, "^") - strings.Index(res.Err.Near, "\n") - 1
			if caret < 0 || caret >= len(res.Err.Line) || res.Err.Line[caret] != tt.want {
				t.Errorf("Near = %q, want the caret under %q", res.Err.Near, tt.want)
			}
		})
	}

	res := Parse("> user\nHi {{ add(1 2\n")
	if res.Err == nil || res.Err.LineNumber != 2 {
		t.Errorf("unclosed embed error = %+v, want line 2", res.Err)
	}
}

func TestParseMaxDepth(t *testing.T) {
	p := NewParser(WithMaxParseDepth(3))
	res := p.Parse("> do\na(b(c(d(1))))\n")
	if res.Err == nil {
		t.Fatal("expected depth error")
	}
	if !strings.Contains(res.Err.Message, "depth") {
		t.Errorf("Message = %q", res.Err.Message)
	}
	if res := p.Parse("> do\na(b(1))\n"); res.Err != nil {
		t.Errorf("shallow input failed: %v", res.Err)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.convo")
	if err := os.WriteFile(path, []byte("> user\nhello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := NewParser().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error: %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", res.Messages)
	}
	if _, err := NewParser().ParseFile(filepath.Join(t.TempDir(), "missing.convo")); err == nil {
		t.Error("expected error for missing file")
	}
}
