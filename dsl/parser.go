package dsl

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/everydev1618/goconvo/schema"
)

// DefaultMaxParseDepth bounds statement and string nesting.
const DefaultMaxParseDepth = 100

// ParseError is a parse failure. It is returned as data inside a
// ParseResult so callers keep the messages parsed before it.
type ParseError struct {
	Message    string `json:"message" yaml:"message"`
	Index      int    `json:"index" yaml:"index"`
	LineNumber int    `json:"lineNumber" yaml:"lineNumber"`
	Line       string `json:"line" yaml:"line"`
	Near       string `json:"near" yaml:"near"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s\n%s", e.LineNumber, e.Message, e.Near)
}

// ParseResult holds the messages parsed from a source text.
type ParseResult struct {
	Messages []*Message  `json:"messages" yaml:"messages"`
	Err      *ParseError `json:"error,omitempty" yaml:"error,omitempty"`
	EndIndex int         `json:"endIndex" yaml:"endIndex"`
}

// Error returns the parse error as an error value, or nil.
func (r *ParseResult) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// Parser parses convo source text.
type Parser struct {
	// MaxDepth bounds statement and string nesting.
	MaxDepth int
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithMaxParseDepth overrides DefaultMaxParseDepth.
func WithMaxParseDepth(n int) ParserOption {
	return func(p *Parser) {
		if n > 0 {
			p.MaxDepth = n
		}
	}
}

// NewParser creates a new parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{MaxDepth: DefaultMaxParseDepth}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses source text with a default parser.
func Parse(src string) *ParseResult {
	return NewParser().Parse(src)
}

// ParseFile parses a .convo file. Only I/O failures are returned as
// errors; parse failures are reported in the result.
func (p *Parser) ParseFile(path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return p.Parse(string(data)), nil
}

// Parse parses source text. It never panics on malformed input.
func (p *Parser) Parse(src string) *ParseResult {
	s := &scanner{src: src, report: src, maxDepth: p.MaxDepth}
	if s.maxDepth <= 0 {
		s.maxDepth = DefaultMaxParseDepth
	}
	s.run()
	return &ParseResult{Messages: s.messages, Err: s.err, EndIndex: s.offset + s.pos}
}

type frameKind int

const (
	frameList frameKind = iota
	frameCall
	frameString
	frameEmbed
)

// pending holds decorations waiting for the next statement of a frame.
type pending struct {
	label   string
	opt     bool
	set     string
	setPath []string
	shared  bool
	comment []string
	tags    []Tag
}

type frame struct {
	kind   frameKind
	stmt   *Statement
	closer byte
	block  bool
	items  []*Statement
	next   pending

	quote    byte
	start    int
	buf      strings.Builder
	parts    []*Statement
	embedded bool
}

type scanner struct {
	src      string
	pos      int
	maxDepth int
	indent   int
	err      *ParseError
	messages []*Message

	// report, offset and positions locate errors of sub-scans in the
	// full source.
	report    string
	offset    int
	positions []int

	comment []string
	tags    []Tag
}

func (s *scanner) run() {
	for s.err == nil {
		s.skipSpace(true)
		if s.pos >= len(s.src) {
			return
		}
		switch s.src[s.pos] {
		case '>':
			s.header()
		case '#':
			s.comment = append(s.comment, s.readComment())
		case '@':
			s.tags = append(s.tags, s.readTag(false))
		default:
			s.fail("expected a message header starting with '>'")
		}
	}
}

func (s *scanner) header() {
	s.indent = s.lineIndent(s.pos)
	s.pos++
	s.skipSpace(false)

	var local, call bool
	name := s.readName()
	for (name == "local" || name == "call") && isSpace(s.peek()) {
		save := s.pos
		s.skipSpace(false)
		if !isIdentStart(s.peek()) {
			s.pos = save
			break
		}
		if name == "local" {
			local = true
		} else {
			call = true
		}
		name = s.readName()
	}
	if name == "" {
		s.fail("expected a role or function name after '>'")
		return
	}
	if name == "no" && !local && !call {
		save := s.pos
		s.skipSpace(false)
		if s.readName() == "result" {
			name = "noResult"
		} else {
			s.pos = save
		}
	}

	comment, tags := s.takeDoc()
	msg := &Message{Role: name, Tags: tags}

	if s.peek() != '(' && isTopLevelName(name) && !local && !call {
		body := s.statements(0, true)
		if s.err != nil {
			return
		}
		if body == nil {
			body = []*Statement{}
		}
		msg.Role = "function"
		msg.Fn = &Function{Name: name, TopLevel: true, Body: body, Description: comment, Tags: tags}
		s.messages = append(s.messages, msg)
		return
	}

	if s.peek() == '(' {
		s.pos++
		params := s.statements(')', false)
		if s.err != nil {
			return
		}
		fn := &Function{
			Name:        name,
			Params:      params,
			Local:       local,
			Call:        call,
			Description: comment,
			Tags:        tags,
		}
		msg.Role = "function"
		msg.Fn = fn
		if !call {
			declareParams(fn)
			s.functionBody(fn)
			if s.err != nil {
				return
			}
		}
		s.messages = append(s.messages, msg)
		return
	}

	content, positions := s.readContent()
	if strings.Contains(content, "{{") {
		msg.Statement = s.template(content, positions)
		if s.err != nil {
			return
		}
	} else {
		msg.Content = content
	}
	s.messages = append(s.messages, msg)
}

// functionBody parses an optional "-> [ReturnType] ( body )" tail.
func (s *scanner) functionBody(fn *Function) {
	save := s.pos
	s.skipSpace(true)
	if !strings.HasPrefix(s.src[s.pos:], "->") {
		s.pos = save
		return
	}
	s.pos += 2
	s.skipSpace(true)
	if isIdentStart(s.peek()) {
		fn.ReturnType = s.readName()
		s.skipSpace(true)
	}
	if s.peek() != '(' {
		s.fail("expected '(' to open the function body")
		return
	}
	s.pos++
	fn.Body = s.statements(')', false)
	if fn.Body == nil {
		fn.Body = []*Statement{}
	}
}

// declareParams turns a lone unlabeled reference into a parameter type.
func declareParams(fn *Function) {
	if len(fn.Params) == 1 && fn.Params[0].Label == "" && fn.Params[0].Kind() == KindRef {
		fn.ParamType = fn.Params[0].RefName()
		fn.ParamsName = "args"
		fn.Params = nil
	}
	if v, ok := findTag(fn.Tags, "paramsName"); ok && v != "" {
		fn.ParamsName = v
	}
}

func isTopLevelName(name string) bool {
	switch name {
	case "do", "define", "result", "noResult":
		return true
	}
	return false
}

// readContent reads plain message lines up to the next header line. The
// second result maps each content byte to its index in the source.
func (s *scanner) readContent() (string, []int) {
	var (
		b   strings.Builder
		pos []int
	)
	first := true
	for s.pos < len(s.src) {
		lineStart := s.pos
		lineEnd := len(s.src)
		next := len(s.src)
		if end := strings.IndexByte(s.src[s.pos:], '\n'); end >= 0 {
			lineEnd = s.pos + end
			next = lineEnd + 1
		}
		line := s.src[lineStart:lineEnd]
		trimmed := strings.TrimLeft(line, " \t")
		if !first && strings.HasPrefix(trimmed, ">") {
			break
		}
		s.pos = next

		at := lineStart
		if !first {
			kept := stripIndent(line, s.indent)
			at += len(line) - len(kept)
			line = kept
			trimmed = strings.TrimLeft(line, " \t")
			b.WriteByte('\n')
			pos = append(pos, lineStart-1)
		}
		first = false
		lead := len(line) - len(trimmed)
		escaped := strings.HasPrefix(trimmed, `\>`)
		for i := 0; i < len(line); i++ {
			if escaped && i == lead {
				continue
			}
			b.WriteByte(line[i])
			pos = append(pos, at+i)
		}
	}

	content := b.String()
	start := len(content) - len(strings.TrimLeftFunc(content, unicode.IsSpace))
	end := len(strings.TrimRightFunc(content, unicode.IsSpace))
	if end < start {
		return "", nil
	}
	return content[start:end], pos[start:end]
}

func stripIndent(line string, n int) string {
	i := 0
	for i < n && i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[i:]
}

// template parses message content holding {{ }} embeds. positions maps
// content bytes back to the source for error locations.
func (s *scanner) template(content string, positions []int) *Statement {
	sub := &scanner{src: content, maxDepth: s.maxDepth, report: s.report, offset: s.offset, positions: positions}
	root := &frame{kind: frameList}
	sub.scan([]*frame{root, {kind: frameString}})
	if sub.err != nil {
		s.err = sub.err
		return nil
	}
	if len(root.items) == 0 {
		return &Statement{Value: ""}
	}
	return root.items[0]
}

func (s *scanner) statements(closer byte, block bool) []*Statement {
	root := &frame{kind: frameList, closer: closer, block: block}
	s.scan([]*frame{root})
	return root.items
}

// scan drives the statement state machine. The frame stack holds every
// open call, string and string embed.
func (s *scanner) scan(stack []*frame) {
	root := stack[0]
	for s.err == nil {
		top := stack[len(stack)-1]
		if top.kind == frameString {
			stack = s.scanString(stack)
			continue
		}

		s.skipSpace(true)
		if s.pos >= len(s.src) {
			if len(stack) == 1 && root.closer == 0 {
				return
			}
			s.fail("unexpected end of input")
			return
		}

		c := s.src[s.pos]
		if top.kind == frameEmbed && c == '}' && s.peekAt(1) == '}' {
			s.pos += 2
			stack = s.closeEmbed(stack)
			continue
		}

		switch {
		case c == '>' && len(stack) == 1 && root.block:
			return
		case c == '#':
			top.next.comment = append(top.next.comment, s.readComment())
		case c == '@':
			tag := s.readTag(true)
			if tag.Name == "shared" {
				top.next.shared = true
			}
			top.next.tags = append(top.next.tags, tag)
		case c == ')' || c == '}' || c == ']':
			if c != top.closer {
				s.fail(fmt.Sprintf("unexpected '%c'", c))
				return
			}
			s.pos++
			if len(stack) == 1 {
				return
			}
			stack = s.closeCall(stack)
		case c == '"' || c == '\'':
			s.pos++
			stack = s.push(stack, &frame{kind: frameString, quote: c, start: s.pos - 1})
		case c == '{':
			stack = s.openCall(stack, "map", nil, '}', s.pos)
		case c == '[':
			stack = s.openCall(stack, "array", nil, ']', s.pos)
		case isDigit(c) || (c == '-' && isDigit(s.peekAt(1))):
			s.number(top)
		case isIdentStart(c):
			stack = s.word(stack)
		default:
			s.fail(fmt.Sprintf("unexpected character '%c'", c))
			return
		}
	}
}

func (s *scanner) push(stack []*frame, f *frame) []*frame {
	if len(stack) >= s.maxDepth {
		s.fail("maximum nesting depth exceeded")
		return stack
	}
	return append(stack, f)
}

func (s *scanner) openCall(stack []*frame, fn string, path []string, closer byte, start int) []*frame {
	st := s.newStatement(stack[len(stack)-1])
	st.Fn = fn
	st.FnPath = path
	st.Start = start
	s.pos++
	return s.push(stack, &frame{kind: frameCall, stmt: st, closer: closer})
}

func (s *scanner) closeCall(stack []*frame) []*frame {
	f := stack[len(stack)-1]
	stack = stack[:len(stack)-1]
	f.stmt.End = s.pos
	addChild(stack[len(stack)-1], f.stmt)
	return stack
}

func addChild(f *frame, st *Statement) {
	if f.kind == frameCall {
		f.stmt.Params = append(f.stmt.Params, st)
		return
	}
	f.items = append(f.items, st)
}

// newStatement creates a statement carrying the frame's pending decorations.
func (s *scanner) newStatement(f *frame) *Statement {
	n := f.next
	f.next = pending{}
	st := &Statement{
		Label:   n.label,
		Opt:     n.opt,
		Set:     n.set,
		SetPath: n.setPath,
		Shared:  n.shared,
		Tags:    n.tags,
	}
	if len(n.comment) > 0 {
		st.Comment = strings.Join(n.comment, "\n")
	}
	return st
}

func (s *scanner) word(stack []*frame) []*frame {
	top := stack[len(stack)-1]
	start := s.pos
	path := s.readPath()
	if s.peek() == '(' {
		return s.openCall(stack, path[0], path[1:], ')', start)
	}
	end := s.pos

	s.skipSpace(false)
	c := s.peek()
	if len(path) == 1 && (c == ':' || (c == '?' && s.peekAt(1) == ':')) {
		if c == '?' {
			s.pos++
			top.next.opt = true
		}
		s.pos++
		top.next.label = path[0]
		return stack
	}
	if c == '=' && s.peekAt(1) != '=' {
		s.pos++
		top.next.set = path[0]
		top.next.setPath = path[1:]
		return stack
	}
	s.pos = end

	st := s.newStatement(top)
	st.Start = start
	st.End = end
	if len(path) == 1 {
		switch path[0] {
		case "true":
			st.Value = true
		case "false":
			st.Value = false
		case "null":
			st.Value = schema.Null
		case "undefined":
		case "break", "return":
			st.Keyword = path[0]
		default:
			st.Ref = path[0]
		}
	} else {
		st.Ref = path[0]
		st.RefPath = path[1:]
	}
	addChild(top, st)
	return stack
}

func (s *scanner) number(top *frame) {
	start := s.pos
	if s.peek() == '-' {
		s.pos++
	}
	for isDigit(s.peek()) {
		s.pos++
	}
	if s.peek() == '.' && isDigit(s.peekAt(1)) {
		s.pos++
		for isDigit(s.peek()) {
			s.pos++
		}
	}
	if c := s.peek(); c == 'e' || c == 'E' {
		save := s.pos
		s.pos++
		if c := s.peek(); c == '+' || c == '-' {
			s.pos++
		}
		if !isDigit(s.peek()) {
			s.pos = save
		}
		for isDigit(s.peek()) {
			s.pos++
		}
	}
	f, err := strconv.ParseFloat(s.src[start:s.pos], 64)
	if err != nil {
		s.pos = start
		s.fail("invalid number")
		return
	}
	st := s.newStatement(top)
	st.Value = f
	st.Start = start
	st.End = s.pos
	addChild(top, st)
}

// scanString consumes string characters until the closing quote or the
// start of a {{ }} embed. A zero quote scans to the end of input.
func (s *scanner) scanString(stack []*frame) []*frame {
	f := stack[len(stack)-1]
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case f.quote != 0 && c == f.quote:
			if c == '\'' && s.peekAt(1) == '\'' {
				f.buf.WriteByte('\'')
				s.pos += 2
				continue
			}
			s.pos++
			return s.closeString(stack)
		case c == '\\' && f.quote == '"':
			s.pos++
			if s.pos >= len(s.src) {
				continue
			}
			switch e := s.src[s.pos]; e {
			case 'n':
				f.buf.WriteByte('\n')
			case 't':
				f.buf.WriteByte('\t')
			case 'r':
				f.buf.WriteByte('\r')
			default:
				f.buf.WriteByte(e)
			}
			s.pos++
		case c == '{' && s.peekAt(1) == '{':
			s.flushText(f)
			f.embedded = true
			s.pos += 2
			return s.push(stack, &frame{kind: frameEmbed})
		case c == '\n':
			f.buf.WriteByte('\n')
			s.pos++
			s.skipIndent()
		default:
			f.buf.WriteByte(c)
			s.pos++
		}
	}
	if f.quote != 0 {
		s.failAt(f.start, "unterminated string")
		return stack
	}
	return s.closeString(stack)
}

func (s *scanner) flushText(f *frame) {
	if f.buf.Len() == 0 {
		return
	}
	f.parts = append(f.parts, &Statement{Value: f.buf.String()})
	f.buf.Reset()
}

func (s *scanner) closeString(stack []*frame) []*frame {
	f := stack[len(stack)-1]
	stack = stack[:len(stack)-1]
	parent := stack[len(stack)-1]

	if !f.embedded {
		text := f.buf.String()
		if f.quote != 0 && parent.next.label == "" && parent.next.set == "" && s.labelFollows() {
			parent.next.label = text
			return stack
		}
		st := s.newStatement(parent)
		st.Value = text
		st.Start = f.start
		st.End = s.pos
		addChild(parent, st)
		return stack
	}

	s.flushText(f)
	st := s.newStatement(parent)
	st.Fn = "md"
	st.Params = f.parts
	st.Start = f.start
	st.End = s.pos
	addChild(parent, st)
	return stack
}

func (s *scanner) closeEmbed(stack []*frame) []*frame {
	f := stack[len(stack)-1]
	stack = stack[:len(stack)-1]
	str := stack[len(stack)-1]
	switch len(f.items) {
	case 0:
		s.fail("empty embedded expression")
	case 1:
		str.parts = append(str.parts, f.items[0])
	default:
		str.parts = append(str.parts, &Statement{Fn: "do", Params: f.items})
	}
	return stack
}

// labelFollows consumes a ':' after a quoted string used as a label.
func (s *scanner) labelFollows() bool {
	save := s.pos
	s.skipSpace(false)
	if s.peek() == ':' {
		s.pos++
		return true
	}
	s.pos = save
	return false
}

func (s *scanner) takeDoc() (string, []Tag) {
	comment := strings.Join(s.comment, "\n")
	tags := s.tags
	s.comment = nil
	s.tags = nil
	return comment, tags
}

func (s *scanner) readComment() string {
	s.pos++
	start := s.pos
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.pos++
	}
	text := strings.TrimRight(s.src[start:s.pos], " \t\r")
	return strings.TrimPrefix(text, " ")
}

// readTag reads "@name value". Inside statement bodies the shared tag is
// a flag and leaves the rest of the line to the statement it decorates.
func (s *scanner) readTag(inBody bool) Tag {
	s.pos++
	tag := Tag{Name: s.readName()}
	if inBody && tag.Name == "shared" {
		return tag
	}
	start := s.pos
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.pos++
	}
	tag.Value = strings.TrimSpace(s.src[start:s.pos])
	return tag
}

func (s *scanner) readName() string {
	if !isIdentStart(s.peek()) {
		return ""
	}
	start := s.pos
	for isIdentChar(s.peek()) {
		s.pos++
	}
	return s.src[start:s.pos]
}

// readPath reads a dotted name and splits it into root and segments.
func (s *scanner) readPath() []string {
	path := []string{s.readName()}
	for s.peek() == '.' && isIdentChar(s.peekAt(1)) {
		s.pos++
		start := s.pos
		for isIdentChar(s.peek()) {
			s.pos++
		}
		path = append(path, s.src[start:s.pos])
	}
	return path
}

func (s *scanner) peek() byte {
	return s.peekAt(0)
}

func (s *scanner) peekAt(n int) byte {
	if s.pos+n < len(s.src) {
		return s.src[s.pos+n]
	}
	return 0
}

// skipSpace skips blanks, and also newlines and commas when lines is set.
func (s *scanner) skipSpace(lines bool) {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == ' ' || c == '\t' || c == '\r' || (lines && (c == '\n' || c == ',')) {
			s.pos++
			continue
		}
		return
	}
}

func (s *scanner) skipIndent() {
	for i := 0; i < s.indent && s.pos < len(s.src); i++ {
		if c := s.src[s.pos]; c != ' ' && c != '\t' {
			return
		}
		s.pos++
	}
}

func (s *scanner) lineIndent(at int) int {
	i := at
	for i > 0 && (s.src[i-1] == ' ' || s.src[i-1] == '\t') {
		i--
	}
	return at - i
}

func (s *scanner) fail(msg string) {
	s.failAt(s.pos, msg)
}

func (s *scanner) failAt(pos int, msg string) {
	if s.err != nil {
		return
	}
	index := s.offset + pos
	if n := len(s.positions); n > 0 {
		if pos < n {
			index = s.offset + s.positions[pos]
		} else {
			index = s.offset + s.positions[n-1] + 1
		}
	}
	src := s.report
	if index > len(src) {
		index = len(src)
	}
	lineStart := strings.LastIndexByte(src[:index], '\n') + 1
	lineEnd := strings.IndexByte(src[index:], '\n')
	if lineEnd < 0 {
		lineEnd = len(src)
	} else {
		lineEnd += index
	}
	line := src[lineStart:lineEnd]
	s.err = &ParseError{
		Message:    msg,
		Index:      index,
		LineNumber: strings.Count(src[:index], "\n") + 1,
		Line:       line,
		Near:       line + "\n" + strings.Repeat(" ", index-lineStart) + "^",
	}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }
