package llvm

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

var zero = constant.NewInt(types.I64, 0)

// builder declares handlers and materializes constants in one module.
type builder struct {
	mod   *ir.Module
	strs  map[string]*ir.Global
	names map[string]bool // global names taken in mod
	next  int
}

func newBuilder(mod *ir.Module) *builder {
	names := make(map[string]bool, len(mod.Globals))
	for _, g := range mod.Globals {
		names[g.Name()] = true
	}
	return &builder{
		mod:   mod,
		strs:  make(map[string]*ir.Global),
		names: names,
	}
}

// Declare reuses a function of the module with that name, so handlers the
// module already declares or defines keep their own signature.
func (b *builder) Declare(name string, params []types.Type) (value.Value, error) {
	for _, f := range b.mod.Funcs {
		if f.Name() != name {
			continue
		}
		if !f.Sig.Variadic && len(f.Sig.Params) != len(params) || len(f.Sig.Params) > len(params) {
			return nil, fmt.Errorf("%s has %d parameters, handler call needs %d", name, len(f.Sig.Params), len(params))
		}
		for i, t := range f.Sig.Params {
			if !t.Equal(params[i]) {
				return nil, fmt.Errorf("%s parameter %d is %s, handler call passes %s", name, i, t.LLString(), params[i].LLString())
			}
		}
		return f, nil
	}
	ps := make([]*ir.Param, len(params))
	for i, t := range params {
		ps[i] = ir.NewParam("", t)
	}
	return b.mod.NewFunc(name, types.Void, ps...), nil
}

func (b *builder) Char(c byte) value.Value {
	return constant.NewInt(types.I8, int64(int8(c)))
}

func (b *builder) Size(n int) value.Value {
	return constant.NewInt(types.I64, int64(n))
}

// String returns an i8* to a private NUL-terminated copy of s. Equal strings
// share one global.
func (b *builder) String(s string) value.Value {
	g, ok := b.strs[s]
	if !ok {
		g = b.mod.NewGlobalDef(b.globalName(), constant.NewCharArrayFromString(s+"\x00"))
		g.Immutable = true                         // Mark as constant
		g.Linkage = enum.LinkagePrivate             // For optimization
		g.UnnamedAddr = enum.UnnamedAddrUnnamedAddr // For optimization
		b.strs[s] = g
	}
	return constant.NewGetElementPtr(g.ContentType, g, zero, zero)
}

// globalName returns the first .cprintf.str.N not yet used in the module, so
// specializing an already specialized module keeps global names unique.
func (b *builder) globalName() string {
	for {
		name := fmt.Sprintf(".cprintf.str.%d", b.next)
		b.next++
		if !b.names[name] {
			b.names[name] = true
			return name
		}
	}
}
