package condexpr

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
)

// ErrorKind identifies the cause of a ParseError.
type ErrorKind int8

const (
	KindNone ErrorKind = iota

	// Lexical errors.

	// KindUnexpectedChar is a rune that cannot begin any token.
	KindUnexpectedChar
	// KindBadNumber is a malformed numeric literal.
	KindBadNumber
	// KindUnterminatedString is a string literal with no closing quote.
	KindUnterminatedString

	// Syntax errors.

	// KindUnexpectedEOF is input that ended where an expression or closing
	// bracket was required.
	KindUnexpectedEOF
	// KindUnexpectedToken is a token in a position where it cannot appear,
	// e.g. an operand where an operator is expected.
	KindUnexpectedToken
	// KindUnmatchedBracket is a close bracket with no matching open bracket.
	KindUnmatchedBracket
	// KindBadArgs is an empty argument list or an empty argument.
	KindBadArgs
	// KindUnknownOperator is an operator token that cannot be used in its
	// position, e.g. a binary-only operator where a unary one is needed.
	KindUnknownOperator

	// Binding errors.

	// KindUnknownFunction is a call to a name with no registered functions.
	KindUnknownFunction
	// KindNoOverload is a call whose argument types match no signature.
	KindNoOverload
	// KindUnknownVariable is an identifier that names no declared variable
	// or constant.
	KindUnknownVariable
	// KindReserved is a reserved word used as an operand.
	KindReserved
	// KindTypeMismatch is an operator applied to operands of the wrong type.
	KindTypeMismatch
)

var kindnames = [...]string{
	KindNone:               "no error",
	KindUnexpectedChar:     "unexpected character",
	KindBadNumber:          "invalid number",
	KindUnterminatedString: "unterminated string",
	KindUnexpectedEOF:      "unexpected end of input",
	KindUnexpectedToken:    "unexpected token",
	KindUnmatchedBracket:   "unmatched bracket",
	KindBadArgs:            "malformed argument list",
	KindUnknownOperator:    "unknown operator",
	KindUnknownFunction:    "unknown function",
	KindNoOverload:         "no matching overload",
	KindUnknownVariable:    "unknown variable",
	KindReserved:           "reserved word",
	KindTypeMismatch:       "type mismatch",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindnames) {
		return "ErrorKind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindnames[k]
}

// Class returns the sentinel error for the kind's class: ErrLexical,
// ErrSyntax, or ErrBinding.
func (k ErrorKind) Class() error {
	switch {
	case k >= KindUnexpectedChar && k <= KindUnterminatedString:
		return ErrLexical
	case k >= KindUnexpectedEOF && k <= KindUnknownOperator:
		return ErrSyntax
	case k >= KindUnknownFunction && k <= KindTypeMismatch:
		return ErrBinding
	default:
		return nil
	}
}

// Classes of parse errors. Every *ParseError matches exactly one of these
// with errors.Is.
var (
	ErrLexical = errors.New("lexical error")
	ErrSyntax  = errors.New("syntax error")
	ErrBinding = errors.New("binding error")
)

// ParseError is the error for any invalid input to Parse. It implements
// InputError.
type ParseError struct {
	// Kind is the cause of the error.
	Kind ErrorKind
	// Col is the 1-based rune column at which the error was detected.
	Col int
	// Text is the offending text: a rune, token, or name.
	Text string
	// Want describes what was expected instead, if anything.
	Want string
	// Suggest lists similar names for unknown function and variable errors.
	Suggest []string
}

func (err *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(err.Col))
	b.WriteString(": ")
	b.WriteString(err.Kind.String())
	if err.Text != "" {
		b.WriteByte(' ')
		b.WriteString(strconv.Quote(err.Text))
	}
	if err.Want != "" {
		b.WriteString(", expected ")
		b.WriteString(err.Want)
	}
	if len(err.Suggest) > 0 {
		b.WriteString(" (did you mean ")
		for i, s := range err.Suggest {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s)
		}
		b.WriteString("?)")
	}
	return b.String()
}

func (err *ParseError) Pos() int {
	return err.Col
}

// Is matches err against its class sentinel.
func (err *ParseError) Is(target error) bool {
	return target != nil && target == err.Kind.Class()
}

// LogValue implements slog.LogValuer.
func (err *ParseError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", err.Kind.String()),
		slog.Int("col", err.Col),
	}
	if err.Text != "" {
		attrs = append(attrs, slog.String("text", err.Text))
	}
	if err.Want != "" {
		attrs = append(attrs, slog.String("want", err.Want))
	}
	if len(err.Suggest) > 0 {
		attrs = append(attrs, slog.Any("suggest", err.Suggest))
	}
	return slog.GroupValue(attrs...)
}

// InputError is an error with position information. Every error resulting from
// invalid input implements InputError.
type InputError interface {
	error
	// Pos returns the position of the error as the 1-based rune column of
	// the token or character that caused it.
	Pos() int
}

var _ InputError = (*ParseError)(nil)

// itShouldNotHaveEndedThisWay returns an error appropriate for an unexpected
// token at the end of a subexpression. open is the bracket that the
// expression should have been closed against, or "" if none.
func itShouldNotHaveEndedThisWay(tok lexToken, open string) error {
	switch tok.kind {
	case tokenEOF:
		// Unexpected EOF implies an open bracket that was not closed.
		return &ParseError{Kind: KindUnexpectedEOF, Col: tok.pos, Want: closing(open)}
	case tokenClose:
		// A bracket could be the wrong bracket for the opening brace or any
		// bracket at the end of an input.
		return &ParseError{Kind: KindUnmatchedBracket, Col: tok.pos, Text: tok.text, Want: closing(open)}
	case tokenSep:
		// Separator outside a function call.
		return &ParseError{Kind: KindUnexpectedToken, Col: tok.pos, Text: tok.text, Want: closing(open)}
	default:
		panic("condexpr: it really should not have ended this way: " + tok.String())
	}
}

// closing describes the token that closes open.
func closing(open string) string {
	if open == "" {
		return "end of input"
	}
	return strconv.Quote(closebrackets[rightbracket(open)])
}
