// llvm walks an LLVM IR module and specializes calls to registered
// printf-alike functions whose format string is a constant.
package llvm

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/kr/pretty"
	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/value"

	"github.com/0x7f454c46/cprintf/clog"
	"github.com/0x7f454c46/cprintf/format"
	"github.com/0x7f454c46/cprintf/libcutils"
	"github.com/0x7f454c46/cprintf/printfun"
	"github.com/0x7f454c46/cprintf/rewrite"
)

type Stats struct {
	Functions   int // defined functions walked
	Calls       int // calls to registered printfuns
	Specialized int
	Skipped     int // calls with a constant format string that were left as is
}

// RewriteIR parses the module in src, specializes it and returns it as text.
func RewriteIR(reg *printfun.Registry, path string, src string) (string, Stats, error) {
	mod, err := asm.ParseString(path, src)
	if err != nil {
		return "", Stats{}, fmt.Errorf("error parsing IR: %w", err)
	}
	stats, err := NewPass(reg, mod).Run()
	if err != nil {
		return "", stats, fmt.Errorf("error rewriting IR: %w", err)
	}
	return mod.String(), stats, nil
}

// RewriteFile parses the module at path and specializes it in place.
func RewriteFile(reg *printfun.Registry, path string) (*ir.Module, Stats, error) {
	mod, err := asm.ParseFile(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("error parsing IR: %w", err)
	}
	stats, err := NewPass(reg, mod).Run()
	if err != nil {
		return nil, stats, fmt.Errorf("error rewriting IR: %w", err)
	}
	return mod, stats, nil
}

type Pass struct {
	reg   *printfun.Registry
	mod   *ir.Module
	rw    *rewrite.Rewriter
	stats Stats
}

func NewPass(reg *printfun.Registry, mod *ir.Module) *Pass {
	return &Pass{
		reg: reg,
		mod: mod,
		rw:  rewrite.New(newBuilder(mod)),
	}
}

func (p *Pass) Run() (Stats, error) {
	// Handler declarations get appended to mod.Funcs while walking
	funcs := append([]*ir.Func(nil), p.mod.Funcs...)
	for _, f := range funcs {
		if len(f.Blocks) == 0 {
			continue
		}
		p.stats.Functions++
		if err := p.runFunc(f); err != nil {
			return p.stats, fmt.Errorf("function %s: %w", f.Name(), err)
		}
	}
	if clog.Enabled(clog.LevelDebug) {
		for _, rule := range p.reg.Rules() {
			p.rw.Bindings(rule).Each(func(key string, callee value.Value) {
				clog.Debugf("%s: %%%s bound to %s", rule.Name, key, callee.Ident())
			})
		}
	}
	return p.stats, nil
}

func (p *Pass) runFunc(f *ir.Func) error {
	clog.Infof("*** cprintf walk for function %s", f.Name())
	used := usedCalls(f)
	for _, block := range f.Blocks {
		insts := make([]ir.Instruction, 0, len(block.Insts))
		for _, inst := range block.Insts {
			call, ok := inst.(*ir.InstCall)
			if !ok {
				insts = append(insts, inst)
				continue
			}
			repl, ok, err := p.handleCall(f, call, used[call])
			if err != nil {
				return err
			}
			if !ok {
				insts = append(insts, inst)
				continue
			}
			insts = append(insts, repl...)
		}
		block.Insts = insts
	}
	return nil
}

// handleCall returns the instructions replacing call, or false when call
// stays as it is.
func (p *Pass) handleCall(f *ir.Func, call *ir.InstCall, used bool) ([]ir.Instruction, bool, error) {
	name := calleeName(call.Callee)
	if name == "" {
		return nil, false, nil
	}
	loc := location(f, call)
	clog.Debugf("\tcall to function %s at %s", name, loc)

	rule, ok := p.reg.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	p.stats.Calls++
	clog.Debugf("\tchecking %s for constant fmt string", name)
	if len(call.Args) <= rule.FmtPos {
		return nil, false, nil
	}
	fmtStr, ok := constString(call.Args[rule.FmtPos])
	if !ok {
		return nil, false, nil
	}

	clog.Infof("\t\ttrying to handle %s call at %s", name, loc)
	if used {
		clog.Warnf("\t\tignoring %s call at %s: its result is used", name, loc)
		p.stats.Skipped++
		return nil, false, nil
	}

	tokens, err := format.Tokenize(fmtStr, rule)
	if err != nil {
		var rerr *format.ResolutionError
		if !errors.As(err, &rerr) {
			return nil, false, err
		}
		if errors.Is(err, format.ErrUnknownSpecifier) {
			clog.Warnf("\t\tignoring format string at %s: %v (%s)", loc, err, libcutils.Hint(rerr.Text))
		} else {
			clog.Warnf("\t\tignoring format string at %s: %v", loc, err)
		}
		p.stats.Skipped++
		return nil, false, nil
	}
	if clog.Enabled(clog.LevelDebug) {
		clog.Debugf("\t\ttokens from format string %q: %s", format.Expand(tokens), pretty.Sprint(tokens))
	}

	if need := rule.FmtPos + format.Specifiers(tokens); need >= len(call.Args) {
		clog.Warnf("\t\tignoring format string at %s: %q needs %d arguments after it, got %d",
			loc, fmtStr, format.Specifiers(tokens), len(call.Args)-rule.FmtPos-1)
		p.stats.Skipped++
		return nil, false, nil
	}

	calls, err := p.rw.Rewrite(call.Args, rule, tokens)
	if err != nil {
		return nil, false, fmt.Errorf("%s call at %s: %w", name, loc, err)
	}
	insts := make([]ir.Instruction, 0, len(calls))
	for _, c := range calls {
		inst := ir.NewCall(c.Callee, c.Args...)
		for _, md := range call.Metadata {
			if md.Name == "dbg" {
				inst.Metadata = append(inst.Metadata, md)
			}
		}
		insts = append(insts, inst)
	}
	p.stats.Specialized++
	return insts, true, nil
}

func calleeName(callee value.Value) string {
	switch c := callee.(type) {
	case *ir.Func:
		return c.Name()
	case *constant.ExprBitCast:
		return calleeName(c.From)
	}
	return ""
}

// constString returns the bytes of a constant C string up to its NUL.
func constString(v value.Value) ([]byte, bool) {
	switch c := v.(type) {
	case *constant.ExprGetElementPtr:
		for _, idx := range c.Indices {
			if !isZero(idx) {
				return nil, false
			}
		}
		return constString(c.Src)
	case *constant.ExprBitCast:
		return constString(c.From)
	case *ir.Global:
		if !c.Immutable || c.Init == nil {
			return nil, false
		}
		arr, ok := c.Init.(*constant.CharArray)
		if !ok {
			return nil, false
		}
		s := arr.X
		if i := bytes.IndexByte(s, 0); i >= 0 {
			s = s[:i]
		}
		return s, true
	}
	return nil, false
}

func isZero(c constant.Constant) bool {
	switch c := c.(type) {
	case *constant.Int:
		return c.X.Sign() == 0
	case *constant.Index:
		return isZero(c.Constant)
	}
	return false
}

type operandsUser interface {
	Operands() []*value.Value
}

// usedCalls collects the calls of f whose result is an operand of another
// instruction or terminator.
func usedCalls(f *ir.Func) map[*ir.InstCall]bool {
	used := make(map[*ir.InstCall]bool)
	mark := func(v any) {
		u, ok := v.(operandsUser)
		if !ok {
			return
		}
		for _, op := range u.Operands() {
			if op == nil {
				continue
			}
			if call, ok := (*op).(*ir.InstCall); ok {
				used[call] = true
			}
		}
	}
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			mark(inst)
		}
		mark(block.Term)
	}
	return used
}

// location renders the source position of call from its !dbg attachment,
// falling back to the enclosing function.
func location(f *ir.Func, call *ir.InstCall) string {
	for _, md := range call.Metadata {
		if md.Name != "dbg" {
			continue
		}
		loc, ok := md.Node.(*metadata.DILocation)
		if !ok {
			continue
		}
		file := scopeFile(loc.Scope)
		if file == "" {
			file = f.Name()
		}
		return fmt.Sprintf("%s:%d", file, loc.Line)
	}
	return "function " + f.Name()
}

func scopeFile(scope metadata.Field) string {
	switch s := scope.(type) {
	case *metadata.DISubprogram:
		if s.File != nil {
			return s.File.Filename
		}
	case *metadata.DILexicalBlock:
		if s.File != nil {
			return s.File.Filename
		}
	case *metadata.DILexicalBlockFile:
		if s.File != nil {
			return s.File.Filename
		}
	}
	return ""
}
