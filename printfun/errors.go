package printfun

import (
	"errors"
	"fmt"
)

var (
	ErrNoFuncName         = errors.New("no function name specified")
	ErrBadFuncName        = errors.New("name should start with a letter or underscore")
	ErrNoOpenParen        = errors.New("format argument position is unknown")
	ErrBadPosition        = errors.New("invalid format argument position")
	ErrEmptyPosition      = errors.New("empty format argument position")
	ErrNoCloseParen       = errors.New("can't find closing brace for format argument position")
	ErrUnexpectedEnd      = errors.New("unexpected end after function header")
	ErrExpectedSpecifier  = errors.New("expected %-specifier")
	ErrEmptySpecifier     = errors.New("empty %-specifier")
	ErrMissingHandler     = errors.New("no handler for %-specifier")
	ErrDuplicateSpecifier = errors.New("%-specifier found twice")
	ErrReservedSpecifier  = errors.New("only `%%' may start with %")
	ErrNoSpecifiers       = errors.New("no %-specifiers")
	ErrDuplicateRule      = errors.New("function defined twice")
)

// ParseError reports a malformed printfun definition. Err is one of the
// sentinel errors above.
type ParseError struct {
	Rule   string
	Offset int
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("printfun %q: offset %d: %v", e.Rule, e.Offset, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
