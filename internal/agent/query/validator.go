package query

import (
	"fmt"
	"strings"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

// ValidatedPlan is a plan the validator accepted. Its field is unexported so
// the only way to obtain one is Validator.Validate; the executor accepts
// nothing else.
type ValidatedPlan struct {
	plan model.QueryPlan
}

func (p ValidatedPlan) Plan() model.QueryPlan { return p.plan }

func (p ValidatedPlan) Cypher() string { return p.plan.Cypher }

// Verdict is the tagged accept/reject result of validation.
type Verdict struct {
	OK     bool
	Reason string
	plan   ValidatedPlan
}

// Validated returns the accepted plan; ok is false for a rejection.
func (v Verdict) Validated() (ValidatedPlan, bool) {
	return v.plan, v.OK
}

func rejected(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Validator statically checks generated Cypher against the schema. It is the
// only gate between generated text and the store and keeps no memory of
// earlier plans.
type Validator struct {
	schema model.SchemaDescriptor
}

func NewValidator(schema model.SchemaDescriptor) *Validator {
	return &Validator{schema: schema}
}

var writeKeywords = map[string]struct{}{
	"CREATE": {}, "MERGE": {}, "DELETE": {}, "DETACH": {}, "SET": {},
	"REMOVE": {}, "DROP": {}, "FOREACH": {}, "INSERT": {}, "GRANT": {},
	"DENY": {}, "REVOKE": {}, "ALTER": {}, "RENAME": {}, "USE": {},
	"TERMINATE": {},
}

var readClauses = map[string]struct{}{
	"MATCH": {}, "OPTIONAL": {}, "WITH": {}, "UNWIND": {}, "RETURN": {}, "CALL": {},
}

// words after which "(" opens a pattern rather than a function call
var patternLeaders = map[string]struct{}{
	"MATCH": {}, "WHERE": {}, "AND": {}, "OR": {}, "XOR": {}, "NOT": {},
	"EXISTS": {}, "WITH": {}, "RETURN": {}, "OPTIONAL": {}, "UNWIND": {},
	"IN": {}, "WHEN": {}, "THEN": {}, "ELSE": {},
}

// Validate returns OK or the first reason the plan is unsafe or does not fit
// the schema. It is a pure function of the plan and the schema.
func (v *Validator) Validate(p model.QueryPlan) Verdict {
	text := strings.TrimSpace(p.Cypher)
	if text == "" {
		return rejected("empty query")
	}

	toks, err := lex(text)
	if err != nil {
		return rejected("malformed query: %v", err)
	}
	for len(toks) > 0 && toks[len(toks)-1].is(tokPunct, ";") {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 {
		return rejected("empty query")
	}

	if reason := checkClauses(toks); reason != "" {
		return rejected("%s", reason)
	}
	if reason := v.checkSchema(toks); reason != "" {
		return rejected("%s", reason)
	}

	p.Cypher = strings.TrimSpace(strings.TrimRight(text, "; \t\r\n"))
	return Verdict{OK: true, plan: ValidatedPlan{plan: p}}
}

func checkClauses(toks []token) string {
	hasReturn := false
	for i, t := range toks {
		if t.is(tokPunct, ";") {
			return "multiple statements are not allowed"
		}
		if t.kind != tokIdent || t.quoted {
			continue
		}
		if i > 0 && toks[i-1].is(tokPunct, ".") {
			continue // property or namespace member
		}
		upper := strings.ToUpper(t.text)
		if _, bad := writeKeywords[upper]; bad {
			return fmt.Sprintf("write clause %s is not allowed; only read-only queries may run", upper)
		}
		next := tokenAt(toks, i+1)
		switch upper {
		case "LOAD":
			if next.keyword("CSV") {
				return "LOAD CSV is not allowed"
			}
		case "IN":
			if next.keyword("TRANSACTIONS") {
				return "CALL { ... } IN TRANSACTIONS is not allowed"
			}
		case "CALL":
			if next.kind == tokIdent {
				return fmt.Sprintf("procedure call %s is not allowed", next.text)
			}
		case "RETURN":
			hasReturn = true
		}
	}

	first := toks[0]
	if first.kind != tokIdent || first.quoted {
		return "query must start with a read clause such as MATCH"
	}
	if _, ok := readClauses[strings.ToUpper(first.text)]; !ok {
		return fmt.Sprintf("query must start with a read clause, not %s", strings.ToUpper(first.text))
	}
	if !hasReturn {
		return "query must RETURN a result"
	}
	return ""
}

type frameKind int

const (
	framePattern frameKind = iota // ( ... ) node pattern or grouping
	frameCall                     // f( ... )
	frameRel                      // -[ ... ]-
	frameList                     // [ ... ]
	frameMap                      // { ... }
)

type frame struct {
	kind       frameKind
	owners     []string // labels or relationship types declared in this pattern
	ownerIsRel bool
	patternMap bool // map directly inside a node or relationship pattern
}

type binding struct {
	name string
	rel  bool
}

type schemaCheck struct {
	schema   model.SchemaDescriptor
	toks     []token
	bindings map[string][]binding
	free     map[string]bool // aliases and comprehension variables
}

func (v *Validator) checkSchema(toks []token) string {
	c := &schemaCheck{
		schema:   v.schema,
		toks:     toks,
		bindings: make(map[string][]binding),
		free:     make(map[string]bool),
	}
	if reason := c.walkPatterns(); reason != "" {
		return reason
	}
	return c.walkProperties()
}

// walkPatterns resolves labels and relationship types, binds pattern
// variables and checks pattern property maps.
func (c *schemaCheck) walkPatterns() string {
	toks := c.toks
	var stack []*frame
	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		prev := tokenAt(toks, i-1)

		if t.keyword("AS") && tokenAt(toks, i+1).kind == tokIdent {
			c.free[toks[i+1].text] = true
		}
		if t.keyword("IN") && prev.kind == tokIdent {
			if f := top(); f != nil && f.kind == frameList {
				c.free[prev.text] = true
			}
		}

		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "(":
			kind := framePattern
			if prev.kind == tokIdent && !prev.quoted {
				if _, leader := patternLeaders[strings.ToUpper(prev.text)]; !leader {
					kind = frameCall
				}
			}
			stack = append(stack, &frame{kind: kind})
		case "[":
			kind := frameList
			if prev.is(tokPunct, "-") || prev.is(tokPunct, "<-") {
				kind = frameRel
			}
			stack = append(stack, &frame{kind: kind})
		case "{":
			f := &frame{kind: frameMap}
			if p := top(); p != nil && (p.kind == framePattern || p.kind == frameRel) {
				f.patternMap = true
				f.owners = p.owners
				f.ownerIsRel = p.kind == frameRel
			}
			stack = append(stack, f)
		case ")", "]", "}":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ":":
			f := top()
			switch {
			case f != nil && f.kind == frameMap:
				if !f.patternMap || prev.kind != tokIdent {
					continue
				}
				if reason := c.checkOwnedProperty(f.owners, f.ownerIsRel, prev.text); reason != "" {
					return reason
				}
				if lit := tokenAt(toks, i+1); lit.kind == tokString {
					if reason := c.checkValue(c.ownedProperties(f.owners, f.ownerIsRel, prev.text), prev.text, lit.text); reason != "" {
						return reason
					}
				}
			case f != nil && f.kind == frameRel:
				types, next := readNames(toks, i+1, "|")
				for _, rt := range types {
					if !c.schema.HasRelationship(rt) {
						return fmt.Sprintf("unknown relationship type %s", rt)
					}
				}
				f.owners = append(f.owners, types...)
				if prev.kind == tokIdent && tokenAt(toks, i-2).is(tokPunct, "[") {
					for _, rt := range types {
						c.bind(prev.text, rt, true)
					}
				}
				i = next - 1
			case f != nil && f.kind == frameList:
				continue
			default:
				if prev.kind != tokIdent && !prev.is(tokPunct, "(") {
					continue
				}
				labels, next := readNames(toks, i+1, ":", "&", "|")
				if len(labels) == 0 {
					return "malformed label expression"
				}
				for _, l := range labels {
					if !c.schema.HasEntity(l) {
						return fmt.Sprintf("unknown node label %s", l)
					}
				}
				if f != nil && f.kind == framePattern {
					f.owners = append(f.owners, labels...)
				}
				if prev.kind == tokIdent {
					for _, l := range labels {
						c.bind(prev.text, l, false)
					}
				}
				i = next - 1
			}
		}
	}
	return ""
}

// readNames reads ident (sep ident)* starting at i, tolerating a ':' after a
// separator as in [:A|:B].
func readNames(toks []token, i int, seps ...string) ([]string, int) {
	var names []string
	for i < len(toks) {
		if toks[i].kind != tokIdent {
			break
		}
		names = append(names, toks[i].text)
		i++
		sep := false
		for _, s := range seps {
			if tokenAt(toks, i).is(tokPunct, s) {
				sep = true
				break
			}
		}
		if !sep {
			break
		}
		i++
		if tokenAt(toks, i).is(tokPunct, ":") {
			i++
		}
	}
	return names, i
}

func (c *schemaCheck) bind(variable, owner string, rel bool) {
	for _, b := range c.bindings[variable] {
		if b.name == owner && b.rel == rel {
			return
		}
	}
	c.bindings[variable] = append(c.bindings[variable], binding{name: owner, rel: rel})
}

// walkProperties checks every var.prop access and literal comparison.
func (c *schemaCheck) walkProperties() string {
	toks := c.toks
	for i := 1; i+1 < len(toks); i++ {
		if !toks[i].is(tokPunct, ".") || toks[i+1].kind != tokIdent {
			continue
		}
		prop := toks[i+1].text
		if tokenAt(toks, i+2).is(tokPunct, "(") {
			continue // namespaced function such as duration.between(
		}
		owner := toks[i-1]
		var props []ownedProperty
		switch {
		case owner.kind == tokIdent:
			if c.free[owner.text] && len(c.bindings[owner.text]) == 0 {
				continue
			}
			var reason string
			props, reason = c.variableProperty(owner.text, prop)
			if reason != "" {
				return reason
			}
		case owner.is(tokPunct, "{") || owner.is(tokPunct, ","):
			// map projection member: n {.name}
			if !c.schema.AnyProperty(prop) {
				return fmt.Sprintf("unknown property %s", prop)
			}
			continue
		default:
			continue // member of a computed value such as duration(...).days
		}

		if reason := c.checkComparison(i+2, prop, props); reason != "" {
			return reason
		}
		if i >= 3 && toks[i-2].kind == tokPunct && (toks[i-2].text == "=" || toks[i-2].text == "<>") && toks[i-3].kind == tokString {
			if reason := c.checkValue(props, prop, toks[i-3].text); reason != "" {
				return reason
			}
		}
	}
	return ""
}

// checkComparison validates literals compared to var.prop at position i:
// "= 'x'", "<> 'x'" and "IN ['x', 'y']".
func (c *schemaCheck) checkComparison(i int, prop string, props []ownedProperty) string {
	op := tokenAt(c.toks, i)
	switch {
	case op.is(tokPunct, "=") || op.is(tokPunct, "<>"):
		if lit := tokenAt(c.toks, i+1); lit.kind == tokString {
			return c.checkValue(props, prop, lit.text)
		}
	case op.keyword("IN") && tokenAt(c.toks, i+1).is(tokPunct, "["):
		for j := i + 2; j < len(c.toks) && !c.toks[j].is(tokPunct, "]"); j++ {
			if c.toks[j].kind == tokString {
				if reason := c.checkValue(props, prop, c.toks[j].text); reason != "" {
					return reason
				}
			}
		}
	}
	return ""
}

type ownedProperty struct {
	owner string
	prop  model.Property
}

// variableProperty resolves prop on a variable. Bound variables must declare
// the property on one of their labels; unbound ones need it somewhere in
// the schema.
func (c *schemaCheck) variableProperty(variable, prop string) ([]ownedProperty, string) {
	bs := c.bindings[variable]
	if len(bs) == 0 {
		if !c.schema.AnyProperty(prop) {
			return nil, fmt.Sprintf("unknown property %s.%s", variable, prop)
		}
		var out []ownedProperty
		for _, p := range c.schema.PropertiesNamed(prop) {
			out = append(out, ownedProperty{owner: "*", prop: p})
		}
		return out, ""
	}

	var out []ownedProperty
	owners := make([]string, 0, len(bs))
	for _, b := range bs {
		owners = append(owners, b.name)
		if p, ok := c.lookup(b.name, b.rel, prop); ok {
			out = append(out, ownedProperty{owner: b.name, prop: p})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Sprintf("unknown property %s on %s (%s)", prop, variable, strings.Join(owners, ", "))
	}
	return out, ""
}

func (c *schemaCheck) lookup(owner string, rel bool, prop string) (model.Property, bool) {
	if rel {
		return c.schema.RelationshipProperty(owner, prop)
	}
	return c.schema.EntityProperty(owner, prop)
}

func (c *schemaCheck) ownedProperties(owners []string, rel bool, prop string) []ownedProperty {
	var out []ownedProperty
	for _, o := range owners {
		if p, ok := c.lookup(o, rel, prop); ok {
			out = append(out, ownedProperty{owner: o, prop: p})
		}
	}
	if len(owners) == 0 {
		for _, p := range c.schema.PropertiesNamed(prop) {
			out = append(out, ownedProperty{owner: "*", prop: p})
		}
	}
	return out
}

func (c *schemaCheck) checkOwnedProperty(owners []string, rel bool, prop string) string {
	if len(owners) == 0 {
		if !c.schema.AnyProperty(prop) {
			return fmt.Sprintf("unknown property %s", prop)
		}
		return ""
	}
	if len(c.ownedProperties(owners, rel, prop)) == 0 {
		return fmt.Sprintf("unknown property %s on %s", prop, strings.Join(owners, ", "))
	}
	return ""
}

// checkValue accepts the literal if any candidate declaration allows it.
func (c *schemaCheck) checkValue(props []ownedProperty, prop, value string) string {
	if len(props) == 0 {
		return ""
	}
	for _, op := range props {
		if op.prop.IsAllowed(value) {
			return ""
		}
	}
	op := props[0]
	return fmt.Sprintf("value '%s' is not allowed for %s.%s; use one of %s",
		value, op.owner, prop, quoteList(op.prop.Allowed))
}

func quoteList(vs []string) string {
	quoted := make([]string, len(vs))
	for i, v := range vs {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, ", ")
}

func tokenAt(toks []token, i int) token {
	if i < 0 || i >= len(toks) {
		return token{kind: tokPunct}
	}
	return toks[i]
}
