// printfun holds the specialization rules of printf-alike functions: which
// argument is the format string and which handler each %-specifier is
// rewritten into.
package printfun

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/0x7f454c46/cprintf/clog"
	"github.com/0x7f454c46/cprintf/omap"
	"github.com/0x7f454c46/cprintf/reader"
)

// Reserved routing keys. A literal run of the format string is handed to the
// "c" handler when it is a single byte, to the "%" handler as a (ptr, size,
// nmemb) buffer, or to the "s" handler as a C string.
const (
	KeyChar   = "c"
	KeyWrite  = "%"
	KeyString = "s"
)

type Rule struct {
	Name     string
	FmtPos   int
	Handlers map[string]string // specifier without the leading % -> handler name
	specs    *trie
}

// NewRule builds a rule from already split parts, checking the same
// invariants as ParseRule.
func NewRule(name string, fmtPos int, handlers map[string]string) (*Rule, error) {
	if err := checkIdent(name); err != nil {
		return nil, fmt.Errorf("function %q: %w", name, err)
	}
	if fmtPos < 0 {
		return nil, fmt.Errorf("function %q: %w: %d", name, ErrBadPosition, fmtPos)
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("function %q: %w", name, ErrNoSpecifiers)
	}
	copied := make(map[string]string, len(handlers))
	for spec, handler := range handlers {
		if spec == "" {
			return nil, fmt.Errorf("function %q: %w", name, ErrEmptySpecifier)
		}
		if strings.ContainsAny(spec, " \t") {
			return nil, fmt.Errorf("function %q: %w: %q contains a blank", name, ErrExpectedSpecifier, spec)
		}
		if strings.HasPrefix(spec, KeyWrite) && spec != KeyWrite {
			return nil, fmt.Errorf("function %q: %w: got %%%s", name, ErrReservedSpecifier, spec)
		}
		if err := checkIdent(handler); err != nil {
			return nil, fmt.Errorf("handler %q for %%%s: %w", handler, spec, err)
		}
		copied[spec] = handler
	}
	return newRule(name, fmtPos, copied), nil
}

func newRule(name string, fmtPos int, handlers map[string]string) *Rule {
	r := &Rule{
		Name:     name,
		FmtPos:   fmtPos,
		Handlers: handlers,
		specs:    newTrie(),
	}
	for spec := range handlers {
		r.specs.insert(spec)
	}
	return r
}

func checkIdent(name string) error {
	if name == "" {
		return ErrNoFuncName
	}
	if !reader.IsAlpha(name[0]) && name[0] != '_' {
		return ErrBadFuncName
	}
	for i := 1; i < len(name); i++ {
		if !reader.IsIdent(name[i]) {
			return fmt.Errorf("%w: unexpected %q", ErrBadFuncName, name[i])
		}
	}
	return nil
}

func (r *Rule) Handler(key string) (string, bool) {
	h, ok := r.Handlers[key]
	return h, ok
}

func (r *Rule) Has(key string) bool {
	_, ok := r.Handlers[key]
	return ok
}

// Match returns the longest registered specifier that prefixes text, or "".
func (r *Rule) Match(text []byte) string {
	return string(text[:r.specs.longest(text)])
}

// Keys returns the registered specifiers in sorted order.
func (r *Rule) Keys() []string {
	keys := make([]string, 0, len(r.Handlers))
	for k := range r.Handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the rule back into definition syntax with a blank delimiter.
func (r *Rule) String() string {
	sb := strings.Builder{}
	sb.WriteString(r.Name)
	sb.WriteString("(")
	sb.WriteString(strconv.Itoa(r.FmtPos))
	sb.WriteString(")")
	for _, k := range r.Keys() {
		sb.WriteString(" %")
		sb.WriteString(k)
		sb.WriteString(" ")
		sb.WriteString(r.Handlers[k])
	}
	return sb.String()
}

// Registry maps printf-alike function names to their rules. It is filled while
// configuring and only read afterwards.
type Registry struct {
	rules *omap.Map[string, *Rule]
}

func NewRegistry() *Registry {
	return &Registry{rules: omap.New[string, *Rule]()}
}

// Parse parses one definition and registers it. On error the registry is left
// as it was.
func (reg *Registry) Parse(text string) (*Rule, error) {
	rule, err := ParseRule(text)
	if err != nil {
		return nil, err
	}
	if err := reg.add(rule, text); err != nil {
		return nil, err
	}
	return rule, nil
}

func (reg *Registry) Add(rule *Rule) error {
	return reg.add(rule, rule.String())
}

func (reg *Registry) add(rule *Rule, text string) error {
	if reg.rules.Has(rule.Name) {
		return &ParseError{Rule: text, Detail: rule.Name, Err: ErrDuplicateRule}
	}
	reg.rules.Set(rule.Name, rule)

	clog.Infof("specifier handlers for %s(%d):", rule.Name, rule.FmtPos)
	for _, k := range rule.Keys() {
		clog.Debugf("\t%%%s\t%s", k, rule.Handlers[k])
	}
	return nil
}

func (reg *Registry) Lookup(name string) (*Rule, bool) {
	return reg.rules.Get(name)
}

func (reg *Registry) Len() int {
	return reg.rules.Len()
}

// Rules returns the registered rules in the order they were added.
func (reg *Registry) Rules() []*Rule {
	return append([]*Rule(nil), reg.rules.Index...)
}

type trie struct {
	children map[byte]*trie
	key      bool
}

func newTrie() *trie {
	return &trie{children: make(map[byte]*trie)}
}

func (t *trie) insert(s string) {
	n := t
	for i := 0; i < len(s); i++ {
		next, ok := n.children[s[i]]
		if !ok {
			next = newTrie()
			n.children[s[i]] = next
		}
		n = next
	}
	n.key = true
}

// longest walks text until no key continues the current prefix and returns
// the length of the longest key seen on the way.
func (t *trie) longest(text []byte) int {
	best := 0
	n := t
	for i, c := range text {
		n = n.children[c]
		if n == nil {
			break
		}
		if n.key {
			best = i + 1
		}
	}
	return best
}
