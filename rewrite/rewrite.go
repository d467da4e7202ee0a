// rewrite turns a tokenized printf-alike call into the sequence of handler
// calls that replaces it. It never touches the program itself: declarations
// and constants are requested from a Builder, and the resulting calls are
// returned for the caller to splice in.
package rewrite

import (
	"errors"
	"fmt"

	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/0x7f454c46/cprintf/clog"
	"github.com/0x7f454c46/cprintf/format"
	"github.com/0x7f454c46/cprintf/omap"
	"github.com/0x7f454c46/cprintf/printfun"
)

// PreferSingleChar is the longest literal run handed to the "c" handler.
// TODO: longer runs would need one "c" call per byte; only single bytes are routed there for now.
const PreferSingleChar = 1

// Builder materializes what the replacement calls need in the target module.
type Builder interface {
	// Declare returns an external function returning void with the given
	// parameter types, declaring it if needed.
	Declare(name string, params []types.Type) (value.Value, error)
	Char(c byte) value.Value
	String(s string) value.Value // pointer to the NUL-terminated bytes of s
	Size(n int) value.Value
}

type Call struct {
	Callee  value.Value
	Args    []value.Value
	Key     string // routing key the callee was bound to
	Handler string
	Token   format.Token
}

// Bindings memoizes the handler declared for each routing key of one rule.
type Bindings struct {
	Rule     *printfun.Rule
	handlers *omap.Map[string, value.Value]
}

func (b *Bindings) Get(key string) (value.Value, bool) {
	return b.handlers.Get(key)
}

func (b *Bindings) Len() int {
	return b.handlers.Len()
}

// Each calls cb for every bound routing key in the order keys were bound.
func (b *Bindings) Each(cb func(key string, callee value.Value)) {
	b.handlers.Each(cb)
}

// Rewriter rewrites the calls of one compilation unit. Handler declarations
// are shared by every call it rewrites, and by nothing else.
type Rewriter struct {
	builder  Builder
	bindings map[string]*Bindings
}

func New(builder Builder) *Rewriter {
	return &Rewriter{
		builder:  builder,
		bindings: make(map[string]*Bindings),
	}
}

// Bindings returns the handler bindings made so far for rule.
func (rw *Rewriter) Bindings(rule *printfun.Rule) *Bindings {
	b, ok := rw.bindings[rule.Name]
	if !ok {
		b = &Bindings{Rule: rule, handlers: omap.New[string, value.Value]()}
		rw.bindings[rule.Name] = b
	}
	return b
}

// Rewrite returns one handler call per token, in token order. args are the
// arguments of the original call.
func (rw *Rewriter) Rewrite(args []value.Value, rule *printfun.Rule, tokens []format.Token) ([]Call, error) {
	if len(args) <= rule.FmtPos {
		return nil, &InternalError{
			Rule: rule.Name,
			Msg:  fmt.Sprintf("call has %d arguments, format string is argument %d", len(args), rule.FmtPos),
		}
	}
	prefix := args[:rule.FmtPos]

	calls := make([]Call, 0, len(tokens))
	for _, tok := range tokens {
		key, payload, err := rw.route(args, rule, tok)
		if err != nil {
			return nil, err
		}
		callArgs := make([]value.Value, 0, len(prefix)+len(payload))
		callArgs = append(callArgs, prefix...)
		callArgs = append(callArgs, payload...)

		callee, err := rw.bind(rule, key, tok, callArgs)
		if err != nil {
			return nil, err
		}
		handler, _ := rule.Handler(key)
		calls = append(calls, Call{
			Callee:  callee,
			Args:    callArgs,
			Key:     key,
			Handler: handler,
			Token:   tok,
		})
		if tok.Kind == format.Literal {
			clog.Infof("\tinserted call to %s(%q)", handler, tok.Text)
		} else {
			clog.Infof("\tinserted call to %s for %%%s", handler, tok.Text)
		}
	}
	return calls, nil
}

// route picks the routing key of tok and builds the arguments that follow the
// prefix arguments.
func (rw *Rewriter) route(args []value.Value, rule *printfun.Rule, tok format.Token) (string, []value.Value, error) {
	switch tok.Kind {
	case format.Specifier:
		// Tokenize only resolves registered specifiers
		if !rule.Has(tok.Text) {
			return "", nil, &InternalError{Rule: rule.Name, Key: tok.Text, Token: tok, Msg: "unknown specifier after splitting format string"}
		}
		i := rule.FmtPos + tok.Ordinal
		if tok.Ordinal < 1 || i >= len(args) {
			return "", nil, &InternalError{Rule: rule.Name, Key: tok.Text, Token: tok, Msg: fmt.Sprintf("no argument %d for specifier", i)}
		}
		return tok.Text, []value.Value{args[i]}, nil
	case format.Literal:
		if tok.Text == "" {
			return "", nil, &InternalError{Rule: rule.Name, Token: tok, Msg: "empty literal run"}
		}
		switch {
		case len(tok.Text) <= PreferSingleChar && rule.Has(printfun.KeyChar):
			return printfun.KeyChar, []value.Value{rw.builder.Char(tok.Text[0])}, nil
		case rule.Has(printfun.KeyWrite):
			// const char *ptr, size_t size, size_t nmemb
			return printfun.KeyWrite, []value.Value{
				rw.builder.String(tok.Text),
				rw.builder.Size(1),
				rw.builder.Size(len(tok.Text)),
			}, nil
		case rule.Has(printfun.KeyString):
			return printfun.KeyString, []value.Value{rw.builder.String(tok.Text)}, nil
		}
		return "", nil, &InternalError{Rule: rule.Name, Key: printfun.KeyString, Token: tok, Msg: "constant string to print without %s handler"}
	}
	return "", nil, &InternalError{Rule: rule.Name, Token: tok, Msg: fmt.Sprintf("unexpected token kind %v", tok.Kind)}
}

// bind returns the handler bound to key, declaring it from the types of args
// the first time key is used.
func (rw *Rewriter) bind(rule *printfun.Rule, key string, tok format.Token, args []value.Value) (value.Value, error) {
	b := rw.Bindings(rule)
	if callee, ok := b.handlers.Get(key); ok {
		return callee, nil
	}
	name, ok := rule.Handler(key)
	if !ok {
		return nil, &InternalError{Rule: rule.Name, Key: key, Token: tok, Msg: "no handler registered for routing key"}
	}
	params := make([]types.Type, len(args))
	for i, arg := range args {
		params[i] = arg.Type()
	}
	callee, err := rw.builder.Declare(name, params)
	if err != nil {
		return nil, fmt.Errorf("declare handler %q for %s: %w", name, rule.Name, err)
	}
	b.handlers.Set(key, callee)
	clog.Debugf("\tbuilt declaration for %s", name)
	return callee, nil
}

// InternalError means the tokenizer and the rewriter disagree about a rule.
// It is a bug, not bad input.
type InternalError struct {
	Rule  string
	Key   string
	Token format.Token
	Msg   string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal cprintf error: printfun %s, key %q, token %v: %s", e.Rule, e.Key, e.Token, e.Msg)
}

func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
