package services

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Default layouts used by the date helpers
const (
	DefaultDateLayout     = "Monday, January 2, 2006"
	DefaultTimeLayout     = "3:04 PM"
	DefaultDateTimeLayout = "Monday, January 2, 2006 3:04 PM"
)

var (
	errUnclosedTag     = errors.New("unclosed tag")
	errUnbalancedBlock = errors.New("unbalanced block")
	errUnknownBlock    = errors.New("unknown block helper")
	errUnterminatedArg = errors.New("unterminated string literal")

	variablePattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)
	pathPattern     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*$`)
)

// RenderResult is the outcome of a render. Text is always usable: when HadError
// is set it holds the original template unchanged.
type RenderResult struct {
	Text     string `json:"text"`
	HadError bool   `json:"had_error"`
	Error    string `json:"error,omitempty"`
}

// TemplateRenderer substitutes {{placeholders}} in message templates
type TemplateRenderer interface {
	Render(body string, vars map[string]any) RenderResult
	ExtractVariables(body string) []string
}

// TemplateRendererImpl implements TemplateRenderer
type TemplateRendererImpl struct {
	logger *slog.Logger
	loc    *time.Location
}

// NewTemplateRenderer creates a renderer; dates are formatted in loc (UTC when nil)
func NewTemplateRenderer(logger *slog.Logger, loc *time.Location) TemplateRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TemplateRendererImpl{logger: logger, loc: loc}
}

type nodeKind int

const (
	textNode nodeKind = iota
	tagNode
	blockNode
)

type node struct {
	kind  nodeKind
	raw   string
	expr  string
	block string
	cond  string
	body  []*node
	alt   []*node
	inAlt bool
}

// Render never fails: unknown placeholders stay verbatim and malformed syntax
// yields the original text with HadError set.
func (r *TemplateRendererImpl) Render(body string, vars map[string]any) RenderResult {
	nodes, err := parseTemplate(body)
	if err != nil {
		r.logger.Warn("Template syntax error, returning original text", "error", err)
		return RenderResult{Text: body, HadError: true, Error: err.Error()}
	}

	var sb strings.Builder
	if err := r.renderNodes(&sb, nodes, vars); err != nil {
		r.logger.Warn("Template evaluation error, returning original text", "error", err)
		return RenderResult{Text: body, HadError: true, Error: err.Error()}
	}
	return RenderResult{Text: sb.String()}
}

// ExtractVariables lists the plain placeholder paths used in body, sorted and de-duplicated.
// Block tags and helper calls are not variables.
func (r *TemplateRendererImpl) ExtractVariables(body string) []string {
	seen := make(map[string]struct{})
	for _, m := range variablePattern.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if name == "else" {
			continue
		}
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func parseTemplate(body string) ([]*node, error) {
	root := &node{kind: blockNode}
	stack := []*node{root}
	appendNode := func(n *node) {
		top := stack[len(stack)-1]
		if top.inAlt {
			top.alt = append(top.alt, n)
		} else {
			top.body = append(top.body, n)
		}
	}

	rest := body
	for len(rest) > 0 {
		open := strings.Index(rest, "{{")
		if open < 0 {
			appendNode(&node{kind: textNode, raw: rest})
			break
		}
		if open > 0 {
			appendNode(&node{kind: textNode, raw: rest[:open]})
		}
		closeIdx := strings.Index(rest[open+2:], "}}")
		if closeIdx < 0 {
			return nil, fmt.Errorf("%w at offset %d", errUnclosedTag, len(body)-len(rest)+open)
		}
		raw := rest[open : open+2+closeIdx+2]
		expr := strings.TrimSpace(raw[2 : len(raw)-2])
		rest = rest[open+2+closeIdx+2:]

		switch {
		case strings.HasPrefix(expr, "#"):
			fields := strings.Fields(expr[1:])
			if len(fields) != 2 || (fields[0] != "if" && fields[0] != "unless") {
				return nil, fmt.Errorf("%w: %q", errUnknownBlock, expr)
			}
			blk := &node{kind: blockNode, raw: raw, block: fields[0], cond: fields[1]}
			appendNode(blk)
			stack = append(stack, blk)
		case strings.HasPrefix(expr, "/"):
			name := strings.TrimSpace(expr[1:])
			top := stack[len(stack)-1]
			if len(stack) == 1 || top.block != name {
				return nil, fmt.Errorf("%w: unexpected %q", errUnbalancedBlock, raw)
			}
			stack = stack[:len(stack)-1]
		case expr == "else":
			top := stack[len(stack)-1]
			if len(stack) == 1 || top.inAlt {
				return nil, fmt.Errorf("%w: unexpected else", errUnbalancedBlock)
			}
			top.inAlt = true
		default:
			appendNode(&node{kind: tagNode, raw: raw, expr: expr})
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: %q is never closed", errUnbalancedBlock, stack[len(stack)-1].raw)
	}
	return root.body, nil
}

func (r *TemplateRendererImpl) renderNodes(sb *strings.Builder, nodes []*node, vars map[string]any) error {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			sb.WriteString(n.raw)
		case tagNode:
			out, err := r.evalTag(n, vars)
			if err != nil {
				return err
			}
			sb.WriteString(out)
		case blockNode:
			v, ok := LookupPath(vars, n.cond)
			truth := ok && truthy(v)
			if n.block == "unless" {
				truth = !truth
			}
			branch := n.alt
			if truth {
				branch = n.body
			}
			if err := r.renderNodes(sb, branch, vars); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *TemplateRendererImpl) evalTag(n *node, vars map[string]any) (string, error) {
	if pathPattern.MatchString(n.expr) {
		v, ok := LookupPath(vars, n.expr)
		if !ok {
			return n.raw, nil
		}
		return stringify(v, r.loc), nil
	}

	args, err := splitArgs(n.expr)
	if err != nil {
		return "", err
	}
	if len(args) < 2 {
		return n.raw, nil
	}

	name := args[0].text
	first, firstOK := r.resolveArg(args[1], vars)
	switch name {
	case "default":
		if len(args) < 3 {
			return n.raw, nil
		}
		if firstOK && stringify(first, r.loc) != "" {
			return stringify(first, r.loc), nil
		}
		fallback, ok := r.resolveArg(args[2], vars)
		if !ok {
			return n.raw, nil
		}
		return stringify(fallback, r.loc), nil
	case "formatDate", "formatTime", "formatDateTime":
		if !firstOK {
			return n.raw, nil
		}
		layout := map[string]string{
			"formatDate":     DefaultDateLayout,
			"formatTime":     DefaultTimeLayout,
			"formatDateTime": DefaultDateTimeLayout,
		}[name]
		if len(args) > 2 {
			if l, ok := r.resolveArg(args[2], vars); ok {
				layout = stringify(l, r.loc)
			}
		}
		t, err := utils.ParseTimeValue(first)
		if err != nil {
			return stringify(first, r.loc), nil
		}
		return t.In(r.loc).Format(layout), nil
	case "uppercase", "lowercase", "titlecase":
		if !firstOK {
			return n.raw, nil
		}
		s := stringify(first, r.loc)
		switch name {
		case "uppercase":
			return cases.Upper(language.Und).String(s), nil
		case "lowercase":
			return cases.Lower(language.Und).String(s), nil
		default:
			return cases.Title(language.Und).String(s), nil
		}
	}
	return n.raw, nil
}

type arg struct {
	text    string
	literal bool
}

func (r *TemplateRendererImpl) resolveArg(a arg, vars map[string]any) (any, bool) {
	if a.literal {
		return a.text, true
	}
	return LookupPath(vars, a.text)
}

func splitArgs(expr string) ([]arg, error) {
	var out []arg
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(expr[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("%w in %q", errUnterminatedArg, expr)
			}
			out = append(out, arg{text: expr[i+1 : i+1+end], literal: true})
			i += end + 2
		default:
			j := i
			for j < len(expr) && expr[j] != ' ' && expr[j] != '\t' && expr[j] != '\n' {
				j++
			}
			out = append(out, arg{text: expr[i:j]})
			i = j
		}
	}
	return out, nil
}

// LookupPath resolves a dotted path. A flat key equal to the whole path wins over
// walking nested maps, so flattened and nested contexts address the same value.
func LookupPath(vars map[string]any, path string) (any, bool) {
	if vars == nil {
		return nil, false
	}
	if v, ok := vars[path]; ok {
		return v, true
	}
	var cur any = vars
	for _, part := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			rv := reflect.ValueOf(cur)
			if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
				return nil, false
			}
			v := rv.MapIndex(reflect.ValueOf(part).Convert(rv.Type().Key()))
			if !v.IsValid() {
				return nil, false
			}
			cur = v.Interface()
		}
	}
	return cur, true
}

func stringify(v any, loc *time.Location) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case time.Time:
		return t.In(loc).Format(DefaultDateTimeLayout)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.In(loc).Format(DefaultDateTimeLayout)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
