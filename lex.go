package condexpr

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type lexToken struct {
	text string
	kind tokenKind
	pos  int
}

func (t lexToken) String() string {
	return t.kind.String() + ":" + t.text + "@" + strconv.Itoa(t.pos)
}

type tokenKind int

const (
	tokenNone tokenKind = iota
	// tokenEOF indicates the end of the input.
	tokenEOF
	// tokenNum is a numeric literal.
	tokenNum
	// tokenStr is a string literal. Its text excludes the quotes.
	tokenStr
	// tokenIdent is a variable, constant, or function name.
	tokenIdent
	// tokenOp is an operator, either symbolic or a word.
	tokenOp
	// tokenOpen is an open bracket, e.g. (.
	tokenOpen
	// tokenClose is a close bracket, e.g. ).
	tokenClose
	// tokenSep is the function arguments separator.
	tokenSep
)

var tokennames = [...]string{
	tokenNone:  "None",
	tokenEOF:   "EOF",
	tokenNum:   "Num",
	tokenStr:   "Str",
	tokenIdent: "Ident",
	tokenOp:    "Op",
	tokenOpen:  "Open",
	tokenClose: "Close",
	tokenSep:   "Sep",
}

func (k tokenKind) String() string {
	if k < 0 || int(k) >= len(tokennames) {
		return "tokenKind(" + strconv.Itoa(int(k)) + ")"
	}
	return tokennames[k]
}

// OpenBrackets and CloseBrackets contain the runes which group expressions.
// The parser checks that a bracket in byte position k in OpenBrackets is
// matched with the bracket in byte position k in CloseBrackets.
const (
	OpenBrackets  = "([{"
	CloseBrackets = ")]}"
)

// Separator separates function arguments.
const Separator = ','

func byteidcs(s string) []string {
	v := make([]string, len(s))
	for i, r := range s {
		v[i] = string(r)
	}
	return v
}

var (
	openbrackets  = byteidcs(OpenBrackets)
	closebrackets = byteidcs(CloseBrackets)
)

type lexer struct {
	src string
	// off is the byte offset of the next rune.
	off int
	// col is the 1-based rune column of the next rune.
	col int
	// punct is the list of symbolic operators, longest first.
	punct []string
	// words is the set of word operators.
	words map[string]bool
	p     lexToken
}

func lex(src string, cfg *Config) *lexer {
	return &lexer{
		src:   src,
		col:   1,
		punct: cfg.punct,
		words: cfg.words,
	}
}

// push unreads a token so that it is the next token returned from next. Panics
// if there is already a pushed token.
func (l *lexer) push(tok lexToken) {
	if l.p.kind != tokenNone {
		panic("condexpr: double push")
	}
	l.p = tok
}

// must scans the pushed token. Panics if there is no pushed token.
func (l *lexer) must() lexToken {
	tok := l.p
	if tok.kind == tokenNone {
		panic("condexpr: no pushed token")
	}
	l.p = lexToken{}
	return tok
}

// peek returns the next rune without consuming it, or -1 at the end of the
// input.
func (l *lexer) peek() (rune, int) {
	if l.off >= len(l.src) {
		return -1, 0
	}
	return utf8.DecodeRuneInString(l.src[l.off:])
}

// advance consumes a rune of size sz.
func (l *lexer) advance(sz int) {
	l.off += sz
	l.col++
}

// next scans the next token from the input. At the end of the input, next
// returns an EOF token every time it is called.
func (l *lexer) next() (lexToken, error) {
	if l.p.kind != tokenNone {
		tok := l.p
		l.p = lexToken{}
		return tok, nil
	}
	for {
		r, sz := l.peek()
		if r < 0 || !unicode.IsSpace(r) {
			break
		}
		l.advance(sz)
	}
	tok := lexToken{pos: l.col}
	r, sz := l.peek()
	switch {
	case r < 0:
		tok.kind = tokenEOF
		return tok, nil
	case '0' <= r && r <= '9', r == '.' && l.digitAfterDot():
		text, err := l.scanNum()
		if err != nil {
			return tok, err
		}
		tok.text = text
		tok.kind = tokenNum
		return tok, nil
	case identRune(r, true):
		tok.text = l.scanIdent()
		tok.kind = tokenIdent
		if l.words[tok.text] {
			tok.kind = tokenOp
		}
		return tok, nil
	case r == '"':
		text, err := l.scanString()
		if err != nil {
			return tok, err
		}
		tok.text = text
		tok.kind = tokenStr
		return tok, nil
	case r == Separator:
		l.advance(sz)
		tok.text = string(Separator)
		tok.kind = tokenSep
		return tok, nil
	}
	if k := strings.IndexRune(OpenBrackets, r); k >= 0 {
		l.advance(sz)
		tok.text = openbrackets[k]
		tok.kind = tokenOpen
		return tok, nil
	}
	if k := strings.IndexRune(CloseBrackets, r); k >= 0 {
		l.advance(sz)
		tok.text = closebrackets[k]
		tok.kind = tokenClose
		return tok, nil
	}
	rest := l.src[l.off:]
	for _, op := range l.punct {
		if strings.HasPrefix(rest, op) {
			l.off += len(op)
			l.col += utf8.RuneCountInString(op)
			tok.text = op
			tok.kind = tokenOp
			return tok, nil
		}
	}
	text := string(r)
	if r == utf8.RuneError && sz == 1 {
		text = rest[:1]
	}
	return tok, &ParseError{Kind: KindUnexpectedChar, Col: tok.pos, Text: text}
}

// digitAfterDot reports whether the rune following a leading '.' is a digit.
func (l *lexer) digitAfterDot() bool {
	k := l.off + 1
	return k < len(l.src) && '0' <= l.src[k] && l.src[k] <= '9'
}

// digits consumes a run of decimal digits and returns how many there were.
func (l *lexer) digits() int {
	n := 0
	for {
		r, sz := l.peek()
		if r < '0' || r > '9' {
			return n
		}
		l.advance(sz)
		n++
	}
}

func (l *lexer) scanNum() (string, error) {
	start := l.off
	n := l.digits()
	if r, sz := l.peek(); r == '.' {
		l.advance(sz)
		n += l.digits()
	}
	if n == 0 {
		return "", l.badnum(start)
	}
	if r, sz := l.peek(); r == 'e' || r == 'E' {
		l.advance(sz)
		if r, sz := l.peek(); r == '+' || r == '-' {
			l.advance(sz)
		}
		if l.digits() == 0 {
			return "", l.badnum(start)
		}
	}
	// A number runs into whatever follows it only if that is punctuation.
	if r, _ := l.peek(); r == '.' || identRune(r, false) {
		return "", l.badnum(start)
	}
	return l.src[start:l.off], nil
}

// badnum creates an error for an invalid number beginning at byte start and
// including the rune at the current position.
func (l *lexer) badnum(start int) error {
	col := l.col
	end := l.off
	if r, sz := l.peek(); r >= 0 {
		end += sz
	}
	return &ParseError{Kind: KindBadNumber, Col: col, Text: l.src[start:end]}
}

func (l *lexer) scanIdent() string {
	start := l.off
	_, sz := l.peek()
	l.advance(sz)
	for {
		r, sz := l.peek()
		if !identRune(r, false) {
			return l.src[start:l.off]
		}
		l.advance(sz)
	}
}

func (l *lexer) scanString() (string, error) {
	col := l.col
	_, sz := l.peek()
	l.advance(sz)
	start := l.off
	for {
		r, sz := l.peek()
		switch r {
		case -1:
			return "", &ParseError{Kind: KindUnterminatedString, Col: col, Text: `"` + l.src[start:]}
		case '"':
			s := l.src[start:l.off]
			l.advance(sz)
			return s, nil
		}
		l.advance(sz)
	}
}

// identRune reports whether r may appear in an identifier, or at the start of
// one if first is set.
func identRune(r rune, first bool) bool {
	switch {
	case r == '_', unicode.IsLetter(r):
		return true
	case unicode.IsDigit(r):
		return !first
	default:
		return false
	}
}

// isdelim reports whether r is a bracket, separator, or quote.
func isdelim(r rune) bool {
	return r == Separator || r == '"' ||
		strings.ContainsRune(OpenBrackets, r) || strings.ContainsRune(CloseBrackets, r)
}
