package printfun

import (
	"strconv"
	"strings"

	"github.com/0x7f454c46/cprintf/clog"
	"github.com/0x7f454c46/cprintf/reader"
)

// ParseRule parses one printfun definition:
//
//	<function>(<fmt_position>)<delim>%<spec><delim><handler>[<delim>%<spec><delim><handler>]...
//
// The delimiter is whatever character follows the closing brace, usually a
// blank: `printf(0) %s __puts %ld __putlong %% __putwrite`.
func ParseRule(text string) (*Rule, error) {
	p := &parser{r: reader.New(text), text: text}
	return p.parse()
}

type parser struct {
	r     *reader.Reader
	text  string
	delim byte
}

func (p *parser) fail(err error, detail string) *ParseError {
	return &ParseError{Rule: p.text, Offset: p.r.Info.Offset, Detail: detail, Err: err}
}

func (p *parser) parse() (*Rule, error) {
	name, err := p.ident(ErrNoFuncName)
	if err != nil {
		return nil, err
	}
	pos, err := p.position(name)
	if err != nil {
		return nil, err
	}
	if p.r.EOF() {
		return nil, p.fail(ErrUnexpectedEnd, name+"("+strconv.Itoa(pos)+")")
	}
	p.delim = p.r.Next()

	handlers := make(map[string]string)
	for {
		p.r.SkipBlanks()
		if p.r.EOF() {
			break
		}
		specStart := p.r.Info.Offset
		spec, err := p.specifier()
		if err != nil {
			return nil, err
		}
		if p.r.Peek() == p.delim && !reader.IsBlank(p.delim) {
			p.r.Next()
		}
		p.r.SkipBlanks()
		if p.r.EOF() {
			return nil, p.fail(ErrMissingHandler, "%"+spec)
		}
		handler, err := p.ident(ErrMissingHandler)
		if err != nil {
			return nil, err
		}
		if !p.r.EOF() {
			p.r.Next() // skip the delimiter
		}

		if _, ok := handlers[spec]; ok {
			return nil, &ParseError{Rule: p.text, Offset: specStart, Detail: "%" + spec, Err: ErrDuplicateSpecifier}
		}
		if strings.HasPrefix(spec, KeyWrite) && spec != KeyWrite {
			return nil, &ParseError{Rule: p.text, Offset: specStart, Detail: "%" + spec + " for " + handler, Err: ErrReservedSpecifier}
		}
		handlers[spec] = handler
		if spec == KeyWrite {
			clog.Infof("reserved %%%% specifier for %s", handler)
		}
	}

	if len(handlers) == 0 {
		return nil, p.fail(ErrNoSpecifiers, name)
	}
	return newRule(name, pos, handlers), nil
}

// ident reads a C identifier after optional blanks. When the delimiter is an
// identifier character itself, the identifier stops at a delimiter followed
// by the next %-specifier or by the end of the text.
func (p *parser) ident(missing error) (string, error) {
	p.r.SkipBlanks()
	if p.r.EOF() {
		return "", p.fail(missing, "")
	}
	c := p.r.Peek()
	if !reader.IsAlpha(c) && c != '_' {
		start := p.r.Info.Offset
		bad := p.r.ReadWhile(func(c byte) bool { return !reader.IsBlank(c) })
		return "", &ParseError{Rule: p.text, Offset: start, Detail: "got `" + bad + "'", Err: ErrBadFuncName}
	}

	sb := strings.Builder{}
	for reader.IsIdent(p.r.Peek()) {
		c := p.r.Peek()
		if p.delim != 0 && c == p.delim {
			next := p.r.PeekAt(1)
			if next == '%' || next == reader.EOF {
				break
			}
		}
		sb.WriteByte(p.r.Next())
	}
	return sb.String(), nil
}

func (p *parser) position(name string) (int, error) {
	if p.r.Peek() != '(' {
		return 0, p.fail(ErrNoOpenParen, "function "+name)
	}
	p.r.Next()
	digits := p.r.ReadWhile(reader.IsDigit)
	if digits == "" {
		if p.r.Peek() == ')' {
			return 0, p.fail(ErrEmptyPosition, "function "+name)
		}
		return 0, p.fail(ErrBadPosition, "function "+name)
	}
	pos, err := strconv.ParseUint(digits, 10, 31)
	if err != nil {
		return 0, p.fail(ErrBadPosition, err.Error())
	}
	if p.r.Peek() != ')' {
		return 0, p.fail(ErrNoCloseParen, "function "+name)
	}
	p.r.Next()
	return int(pos), nil
}

// specifier reads `%<spec>` up to a blank, the delimiter or the end of text.
func (p *parser) specifier() (string, error) {
	if p.r.Peek() != '%' {
		start := p.r.Info.Offset
		got := p.r.ReadWhile(func(c byte) bool { return !reader.IsBlank(c) })
		return "", &ParseError{Rule: p.text, Offset: start, Detail: "got `" + got + "'", Err: ErrExpectedSpecifier}
	}
	p.r.Next()
	spec := p.r.ReadWhile(func(c byte) bool {
		if reader.IsBlank(c) {
			return false
		}
		return c != p.delim || p.delim == '%'
	})
	if spec == "" {
		return "", p.fail(ErrEmptySpecifier, "")
	}
	if p.r.EOF() {
		return "", p.fail(ErrMissingHandler, "%"+spec)
	}
	return spec, nil
}
