package dsl

import (
	"strings"

	"github.com/everydev1618/goconvo/schema"
)

// FormatValue renders a runtime value as convo source.
func FormatValue(v any) string {
	return schema.FormatLiteral(clean(v))
}

// FormatStatement renders a statement tree as convo source that parses
// back to an equivalent tree.
func FormatStatement(st *Statement) string {
	var b strings.Builder
	writeStatement(&b, st, "")
	return b.String()
}

func writeStatement(b *strings.Builder, st *Statement, indent string) {
	if st.Comment != "" {
		for _, line := range strings.Split(st.Comment, "\n") {
			b.WriteString("# " + line + "\n" + indent)
		}
	}
	for _, t := range st.Tags {
		if t.Name == "shared" {
			continue
		}
		b.WriteString("@" + t.Name)
		if t.Value != "" {
			b.WriteString(" " + t.Value)
		}
		b.WriteString("\n" + indent)
	}
	if st.Shared {
		b.WriteString("@shared ")
	}
	if st.Label != "" {
		b.WriteString(formatLabel(st.Label))
		if st.Opt {
			b.WriteString("?")
		}
		b.WriteString(":")
	}
	if st.Set != "" {
		b.WriteString(joinPath(st.Set, st.SetPath) + " = ")
	}

	switch st.Kind() {
	case KindCall:
		b.WriteString(st.FnName() + "(")
		for i, p := range st.Params {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeStatement(b, p, indent)
		}
		b.WriteString(")")
	case KindRef:
		b.WriteString(st.RefName())
	case KindKeyword:
		b.WriteString(st.Keyword)
	default:
		b.WriteString(schema.FormatLiteral(st.Value))
	}
}

func formatLabel(label string) string {
	for i := 0; i < len(label); i++ {
		c := label[i]
		if !isIdentChar(c) || (i == 0 && !isIdentStart(c)) {
			return schema.Quote(label)
		}
	}
	return label
}

// FormatFunction renders a function message as convo source.
func FormatFunction(fn *Function) string {
	var b strings.Builder
	if fn.Description != "" {
		for _, line := range strings.Split(fn.Description, "\n") {
			b.WriteString("# " + line + "\n")
		}
	}
	for _, t := range fn.Tags {
		b.WriteString("@" + t.Name)
		if t.Value != "" {
			b.WriteString(" " + t.Value)
		}
		b.WriteString("\n")
	}

	b.WriteString("> ")
	if fn.TopLevel {
		if fn.Name == "noResult" {
			b.WriteString("no result")
		} else {
			b.WriteString(fn.Name)
		}
		b.WriteString("\n")
		for _, st := range fn.Body {
			writeStatement(&b, st, "")
			b.WriteString("\n")
		}
		return b.String()
	}

	if fn.Local {
		b.WriteString("local ")
	}
	if fn.Call {
		b.WriteString("call ")
	}
	b.WriteString(fn.Name + "(")
	if fn.ParamType != "" {
		b.WriteString(fn.ParamType)
	} else {
		for _, p := range fn.Params {
			b.WriteString("\n    ")
			writeStatement(&b, p, "    ")
		}
		if len(fn.Params) > 0 {
			b.WriteString("\n")
		}
	}
	b.WriteString(")")

	if fn.HasBody() {
		b.WriteString(" -> ")
		if fn.ReturnType != "" {
			b.WriteString(fn.ReturnType + " ")
		}
		b.WriteString("(")
		for _, st := range fn.Body {
			b.WriteString("\n    ")
			writeStatement(&b, st, "    ")
		}
		b.WriteString("\n)")
	}
	b.WriteString("\n")
	return b.String()
}

// ResultBlock renders the shared values written since the last
// ClearSharedSetters as a result message. It is empty when nothing changed.
func (c *Context) ResultBlock() string {
	return FormatResult(c.shared, c.sharedSetters)
}

// StateBlock renders every user-visible shared value as a result message.
func (c *Context) StateBlock() string {
	vars := c.SharedVars()
	return FormatResult(vars, sortedKeys(vars))
}

// FormatResult renders the named entries of vars as a "> result" message.
// Names missing from vars are skipped.
func FormatResult(vars map[string]any, names []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("> result\n")
	for _, name := range names {
		v, ok := vars[name]
		if !ok {
			continue
		}
		b.WriteString(name + " = " + FormatValue(v) + "\n")
	}
	return b.String()
}

// Snapshot returns the shared values written since the last
// ClearSharedSetters.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.sharedSetters))
	for _, name := range c.sharedSetters {
		if v, ok := c.shared[name]; ok {
			out[name] = clean(v)
		}
	}
	return out
}
