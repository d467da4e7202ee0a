// format splits a constant printf format string into literal runs and the
// %-specifiers registered for a printfun.
package format

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/0x7f454c46/cprintf/printfun"
)

type Kind int

const (
	Literal Kind = iota
	Specifier
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Specifier:
		return "specifier"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Token struct {
	Kind    Kind
	Text    string // literal bytes with %% already unescaped, or the matched specifier key
	Ordinal int    // 1-based position among specifier tokens, 0 for literals
}

func (t Token) String() string {
	if t.Kind == Specifier {
		return "%" + t.Text
	}
	return fmt.Sprintf("%q", t.Text)
}

var (
	ErrUnknownSpecifier  = errors.New("specifier is not registered")
	ErrUnroutableLiteral = errors.New("literal text without a %s handler")
)

// ResolutionError means the format string can't be specialized with the
// rule. The call is left as it is.
type ResolutionError struct {
	Offset int
	Text   string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("offset %d: %v: %q", e.Offset, e.Err, e.Text)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Tokenize decomposes fmtStr left to right. Either every byte is accounted
// for by the returned tokens or an error is returned and no token is.
func Tokenize(fmtStr []byte, rule *printfun.Rule) ([]Token, error) {
	canStrings := rule.Has(printfun.KeyString)
	tokens := make([]Token, 0)
	lit := []byte{}
	litStart := 0
	ordinal := 0

	flush := func() error {
		if len(lit) == 0 {
			return nil
		}
		if !canStrings {
			return &ResolutionError{Offset: litStart, Text: string(lit), Err: ErrUnroutableLiteral}
		}
		tokens = append(tokens, Token{Kind: Literal, Text: string(lit)})
		lit = lit[:0]
		return nil
	}

	for i := 0; i < len(fmtStr); {
		if len(lit) == 0 {
			litStart = i
		}
		c := fmtStr[i]
		if c != '%' {
			lit = append(lit, c)
			i++
			continue
		}
		// escaped '%' symbol
		if i+1 < len(fmtStr) && fmtStr[i+1] == '%' {
			lit = append(lit, '%')
			i += 2
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		key := rule.Match(fmtStr[i+1:])
		if key == "" {
			return nil, &ResolutionError{Offset: i, Text: unresolved(fmtStr[i:]), Err: ErrUnknownSpecifier}
		}
		ordinal++
		tokens = append(tokens, Token{Kind: Specifier, Text: key, Ordinal: ordinal})
		i += 1 + len(key)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// unresolved cuts the text of a failed specifier at the first blank so that
// warnings stay on one line.
func unresolved(text []byte) string {
	if i := bytes.IndexAny(text, " \t\r\n"); i >= 0 {
		text = text[:i]
	}
	return string(text)
}

// Expand renders tokens back into format string syntax.
func Expand(tokens []Token) string {
	sb := strings.Builder{}
	for _, t := range tokens {
		switch t.Kind {
		case Literal:
			sb.WriteString(strings.ReplaceAll(t.Text, "%", "%%"))
		case Specifier:
			sb.WriteString("%")
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// Specifiers counts the specifier tokens, i.e. the arguments the format
// string consumes after the format argument.
func Specifiers(tokens []Token) int {
	n := 0
	for _, t := range tokens {
		if t.Kind == Specifier {
			n++
		}
	}
	return n
}
