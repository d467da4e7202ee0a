package llvm

import (
	"testing"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/require"

	"github.com/0x7f454c46/cprintf/printfun"
)

const valIR = `
@.str = private unnamed_addr constant [9 x i8] c"val=%d!\0A\00"

declare i32 @printf(i8*, ...)

define i32 @main() {
entry:
	%call = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([9 x i8], [9 x i8]* @.str, i64 0, i64 0), i32 42)
	ret i32 0
}
`

func newRegistry(t *testing.T, defs ...string) *printfun.Registry {
	t.Helper()
	reg := printfun.NewRegistry()
	for _, def := range defs {
		_, err := reg.Parse(def)
		require.NoError(t, err)
	}
	return reg
}

func parse(t *testing.T, src string) *ir.Module {
	t.Helper()
	mod, err := asm.ParseString("test.ll", src)
	require.NoError(t, err)
	return mod
}

func findFunc(mod *ir.Module, name string) *ir.Func {
	for _, f := range mod.Funcs {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

func countFuncs(mod *ir.Module, name string) int {
	n := 0
	for _, f := range mod.Funcs {
		if f.Name() == name {
			n++
		}
	}
	return n
}

// callees lists the callee of every call in the first block of fn.
func callees(t *testing.T, mod *ir.Module, fn string) []string {
	t.Helper()
	f := findFunc(mod, fn)
	require.NotNil(t, f)
	names := []string{}
	for _, inst := range f.Blocks[0].Insts {
		if call, ok := inst.(*ir.InstCall); ok {
			names = append(names, calleeName(call.Callee))
		}
	}
	return names
}

func calls(t *testing.T, mod *ir.Module, fn string) []*ir.InstCall {
	t.Helper()
	f := findFunc(mod, fn)
	require.NotNil(t, f)
	out := []*ir.InstCall{}
	for _, inst := range f.Blocks[0].Insts {
		if call, ok := inst.(*ir.InstCall); ok {
			out = append(out, call)
		}
	}
	return out
}

func TestPassSpecializesConstantFormat(t *testing.T) {
	mod := parse(t, valIR)
	reg := newRegistry(t, "printf(0) %s __puts %d __putint")

	stats, err := NewPass(reg, mod).Run()
	require.NoError(t, err)
	require.Equal(t, Stats{Functions: 1, Calls: 1, Specialized: 1}, stats)
	require.Equal(t, []string{"__puts", "__putint", "__puts"}, callees(t, mod, "main"))

	cs := calls(t, mod, "main")
	s, ok := constString(cs[0].Args[0])
	require.True(t, ok)
	require.Equal(t, "val=", string(s))
	require.Equal(t, int64(42), cs[1].Args[0].(*constant.Int).X.Int64())
	s, ok = constString(cs[2].Args[0])
	require.True(t, ok)
	require.Equal(t, "!\n", string(s))

	puts := findFunc(mod, "__puts")
	require.NotNil(t, puts)
	require.Empty(t, puts.Blocks)
	require.True(t, types.Void.Equal(puts.Sig.RetType))
	require.Equal(t, 1, countFuncs(mod, "__putint"))
}

func TestPassCharAndWriteHandlers(t *testing.T) {
	mod := parse(t, valIR)
	reg := newRegistry(t, "printf(0) %s __puts %d __putint %c __putchar %% __putwrite")

	_, err := NewPass(reg, mod).Run()
	require.NoError(t, err)
	require.Equal(t, []string{"__putwrite", "__putint", "__putwrite"}, callees(t, mod, "main"))

	cs := calls(t, mod, "main")
	require.Len(t, cs[0].Args, 3)
	require.Equal(t, int64(1), cs[0].Args[1].(*constant.Int).X.Int64())
	require.Equal(t, int64(4), cs[0].Args[2].(*constant.Int).X.Int64())
	require.Equal(t, int64(2), cs[2].Args[2].(*constant.Int).X.Int64())
}

func TestPassSingleCharLiteral(t *testing.T) {
	src := `
@.str = private unnamed_addr constant [4 x i8] c"%d\0A\00"

declare i32 @printf(i8*, ...)

define void @f(i32 %x) {
entry:
	%call = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([4 x i8], [4 x i8]* @.str, i64 0, i64 0), i32 %x)
	ret void
}
`
	mod := parse(t, src)
	reg := newRegistry(t, "printf(0) %s __puts %d __putint %c __putchar")

	_, err := NewPass(reg, mod).Run()
	require.NoError(t, err)
	require.Equal(t, []string{"__putint", "__putchar"}, callees(t, mod, "f"))

	cs := calls(t, mod, "f")
	require.Same(t, findFunc(mod, "f").Params[0], cs[0].Args[0])
	require.Equal(t, int64('\n'), cs[1].Args[0].(*constant.Int).X.Int64())
}

func TestPassPrefixArguments(t *testing.T) {
	src := `
@.str = private unnamed_addr constant [7 x i8] c"%s=%d\0A\00"
@.name = private unnamed_addr constant [2 x i8] c"x\00"

declare i32 @fprintf(i8*, i8*, ...)

define void @f(i8* %stream) {
entry:
	%call = call i32 (i8*, i8*, ...) @fprintf(i8* %stream, i8* getelementptr inbounds ([7 x i8], [7 x i8]* @.str, i64 0, i64 0), i8* getelementptr inbounds ([2 x i8], [2 x i8]* @.name, i64 0, i64 0), i32 7)
	ret void
}
`
	mod := parse(t, src)
	reg := newRegistry(t, "fprintf(1) %s fputs %d fputint")

	_, err := NewPass(reg, mod).Run()
	require.NoError(t, err)
	require.Equal(t, []string{"fputs", "fputs", "fputint", "fputs"}, callees(t, mod, "f"))

	stream := findFunc(mod, "f").Params[0]
	for _, c := range calls(t, mod, "f") {
		require.Len(t, c.Args, 2)
		require.Same(t, stream, c.Args[0])
	}
	fputint := findFunc(mod, "fputint")
	require.Len(t, fputint.Sig.Params, 2)
	require.True(t, types.I32.Equal(fputint.Sig.Params[1]))
}

func TestPassSharesDeclarations(t *testing.T) {
	src := `
@.a = private unnamed_addr constant [3 x i8] c"%d\00"
@.b = private unnamed_addr constant [5 x i8] c"n%d \00"

declare i32 @printf(i8*, ...)

define void @f() {
entry:
	%0 = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([3 x i8], [3 x i8]* @.a, i64 0, i64 0), i32 1)
	%1 = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([5 x i8], [5 x i8]* @.b, i64 0, i64 0), i32 2)
	ret void
}

define void @g() {
entry:
	%0 = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([3 x i8], [3 x i8]* @.a, i64 0, i64 0), i32 3)
	ret void
}
`
	mod := parse(t, src)
	reg := newRegistry(t, "printf(0) %s __puts %d __putint")

	stats, err := NewPass(reg, mod).Run()
	require.NoError(t, err)
	require.Equal(t, 3, stats.Specialized)
	require.Equal(t, 1, countFuncs(mod, "__putint"))
	require.Equal(t, 1, countFuncs(mod, "__puts"))

	f := calls(t, mod, "f")
	g := calls(t, mod, "g")
	require.Same(t, f[0].Callee, g[0].Callee)
	require.Same(t, f[0].Callee, f[2].Callee)
}

func TestPassReusesExistingDeclaration(t *testing.T) {
	src := `
@.str = private unnamed_addr constant [3 x i8] c"%s\00"

declare i32 @printf(i8*, ...)
declare void @__puts(i8*)

define void @f(i8* %s) {
entry:
	%call = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([3 x i8], [3 x i8]* @.str, i64 0, i64 0), i8* %s)
	ret void
}
`
	mod := parse(t, src)
	reg := newRegistry(t, "printf(0) %s __puts")

	_, err := NewPass(reg, mod).Run()
	require.NoError(t, err)
	require.Equal(t, 1, countFuncs(mod, "__puts"))
	require.Equal(t, []string{"__puts"}, callees(t, mod, "f"))
}

func TestPassDeclarationMismatch(t *testing.T) {
	for _, tc := range []struct {
		name string
		decl string
		err  string
	}{
		{
			name: "arity",
			decl: "declare void @__puts(i8*, i32)",
			err:  "__puts has 2 parameters, handler call needs 1",
		},
		{
			name: "type",
			decl: "declare void @__putint(i64)",
			err:  "__putint parameter 0 is i64, handler call passes i32",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := `
@.str = private unnamed_addr constant [5 x i8] c"%s%d\00"

declare i32 @printf(i8*, ...)
` + tc.decl + `

define void @f(i8* %s, i32 %n) {
entry:
	%call = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([5 x i8], [5 x i8]* @.str, i64 0, i64 0), i8* %s, i32 %n)
	ret void
}
`
			mod := parse(t, src)
			reg := newRegistry(t, "printf(0) %s __puts %d __putint")

			_, err := NewPass(reg, mod).Run()
			require.ErrorContains(t, err, tc.err)
		})
	}
}

func TestPassKeepsGlobalNamesUnique(t *testing.T) {
	src := `
@.cprintf.str.0 = private unnamed_addr constant [2 x i8] c"x\00"
@.str = private unnamed_addr constant [6 x i8] c"ab%dc\00"

declare i32 @printf(i8*, ...)

define void @f(i32 %n) {
entry:
	%call = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([6 x i8], [6 x i8]* @.str, i64 0, i64 0), i32 %n)
	ret void
}
`
	reg := newRegistry(t, "printf(0) %s puts %d putint %% write")
	out, stats, err := RewriteIR(reg, "named.ll", src)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Specialized)

	mod := parse(t, out)
	require.Equal(t, []string{"write", "putint", "write"}, callees(t, mod, "f"))
	require.Len(t, mod.Globals, 4)
	require.Equal(t, ".cprintf.str.1", mod.Globals[2].Name())
	require.Equal(t, ".cprintf.str.2", mod.Globals[3].Name())

	// Specializing the output again with a new rule
	reg = newRegistry(t, "printf(0) %s puts %d putint %% write", "write(0) %s puts %d putint")
	again, stats, err := RewriteIR(reg, "named.ll", out)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Specialized)
	mod = parse(t, again)
	require.Equal(t, []string{"puts", "putint", "puts"}, callees(t, mod, "f"))
}

func TestPassLeavesCallsAlone(t *testing.T) {
	for _, tc := range []struct {
		name    string
		src     string
		skipped int
	}{
		{
			name: "non constant format",
			src: `
declare i32 @printf(i8*, ...)

define void @f(i8* %fmt) {
entry:
	%call = call i32 (i8*, ...) @printf(i8* %fmt, i32 1)
	ret void
}
`,
		},
		{
			name: "unregistered specifier",
			src: `
@.str = private unnamed_addr constant [5 x i8] c"%5d\0A\00"

declare i32 @printf(i8*, ...)

define void @f() {
entry:
	%call = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([5 x i8], [5 x i8]* @.str, i64 0, i64 0), i32 1)
	ret void
}
`,
			skipped: 1,
		},
		{
			name: "result used",
			src: `
@.str = private unnamed_addr constant [3 x i8] c"%d\00"

declare i32 @printf(i8*, ...)

define i32 @f() {
entry:
	%call = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([3 x i8], [3 x i8]* @.str, i64 0, i64 0), i32 1)
	ret i32 %call
}
`,
			skipped: 1,
		},
		{
			name: "too few arguments",
			src: `
@.str = private unnamed_addr constant [5 x i8] c"%d%d\00"

declare i32 @printf(i8*, ...)

define void @f() {
entry:
	%call = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([5 x i8], [5 x i8]* @.str, i64 0, i64 0), i32 1)
	ret void
}
`,
			skipped: 1,
		},
		{
			name: "offset into string",
			src: `
@.str = private unnamed_addr constant [3 x i8] c"%d\00"

declare i32 @printf(i8*, ...)

define void @f() {
entry:
	%call = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([3 x i8], [3 x i8]* @.str, i64 0, i64 1), i32 1)
	ret void
}
`,
		},
		{
			name: "mutable format",
			src: `
@buf = global [3 x i8] c"%d\00"

declare i32 @printf(i8*, ...)

define void @f() {
entry:
	%call = call i32 (i8*, ...) @printf(i8* getelementptr inbounds ([3 x i8], [3 x i8]* @buf, i64 0, i64 0), i32 1)
	ret void
}
`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mod := parse(t, tc.src)
			reg := newRegistry(t, "printf(0) %d __putint")

			stats, err := NewPass(reg, mod).Run()
			require.NoError(t, err)
			require.Equal(t, tc.skipped, stats.Skipped)
			require.Zero(t, stats.Specialized)
			require.Equal(t, []string{"printf"}, callees(t, mod, "f"))
			require.Nil(t, findFunc(mod, "__putint"))
		})
	}
}

func TestPassIgnoresOtherFunctions(t *testing.T) {
	src := `
@.str = private unnamed_addr constant [3 x i8] c"hi\00"

declare i32 @puts(i8*)

define void @f() {
entry:
	%call = call i32 @puts(i8* getelementptr inbounds ([3 x i8], [3 x i8]* @.str, i64 0, i64 0))
	ret void
}
`
	mod := parse(t, src)
	stats, err := NewPass(newRegistry(t, "printf(0) %s __puts"), mod).Run()
	require.NoError(t, err)
	require.Equal(t, Stats{Functions: 1}, stats)
	require.Equal(t, []string{"puts"}, callees(t, mod, "f"))
}

func TestRewriteIR(t *testing.T) {
	reg := newRegistry(t, "printf(0) %s __puts %d __putint")
	out, stats, err := RewriteIR(reg, "val.ll", valIR)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Specialized)
	require.Contains(t, out, "@__putint")
	require.NotContains(t, out, "call i32 (i8*, ...) @printf")

	// The output is valid IR again
	mod := parse(t, out)
	require.Equal(t, []string{"__puts", "__putint", "__puts"}, callees(t, mod, "main"))
}

func TestRewriteIRParseError(t *testing.T) {
	_, _, err := RewriteIR(newRegistry(t, "printf(0) %s __puts"), "bad.ll", "define @")
	require.ErrorContains(t, err, "error parsing IR")
}

func TestBuilderDeduplicatesStrings(t *testing.T) {
	mod := ir.NewModule()
	b := newBuilder(mod)
	b.String("a")
	b.String("b")
	b.String("a")
	require.Len(t, mod.Globals, 2)
	require.True(t, mod.Globals[0].Immutable)
}

func TestBuilderChar(t *testing.T) {
	c := newBuilder(ir.NewModule()).Char('A').(*constant.Int)
	require.Equal(t, int64('A'), c.X.Int64())
	require.True(t, types.I8.Equal(c.Typ))
}
