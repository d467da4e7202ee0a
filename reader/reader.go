// reader walks a single printfun definition byte by byte and keeps track of the
// cursor offset so parse errors can point at the offending column.
// It returns EOF past the end of the text, which simplifies the parser's control flow.
package reader

const EOF byte = 0 // Rule text never contains NUL, a plugin argument can't carry one

type Info struct {
	Offset int
}

type Reader struct {
	text string
	Info Info
}

func New(text string) *Reader {
	return &Reader{text: text}
}

func (r *Reader) EOF() bool {
	return r.Info.Offset >= len(r.text)
}

func (r *Reader) Peek() byte {
	if r.EOF() {
		return EOF
	}
	return r.text[r.Info.Offset]
}

// PeekAt looks n bytes past the cursor without moving it.
func (r *Reader) PeekAt(n int) byte {
	i := r.Info.Offset + n
	if i < 0 || i >= len(r.text) {
		return EOF
	}
	return r.text[i]
}

func (r *Reader) Next() byte {
	if r.EOF() {
		return EOF
	}
	c := r.text[r.Info.Offset]
	r.Info.Offset++
	return c
}

// ReadWhile consumes bytes as long as ok accepts them and returns what was consumed.
func (r *Reader) ReadWhile(ok func(c byte) bool) string {
	start := r.Info.Offset
	for !r.EOF() && ok(r.Peek()) {
		r.Next()
	}
	return r.text[start:r.Info.Offset]
}

func (r *Reader) SkipBlanks() {
	r.ReadWhile(IsBlank)
}

func IsBlank(c byte) bool {
	return c == ' ' || c == '\t'
}

func IsAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func IsDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func IsIdent(c byte) bool {
	return IsAlpha(c) || IsDigit(c) || c == '_'
}
