package condexpr

import (
	"log/slog"
	"maps"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zephyrtronium/condexpr/internal/log"
)

// Expr = Operand { BinaryOp Operand }
// Operand = { UnaryOp } Term
// Term = num | string | name | Call | '(' Expr ')' | '[' Expr ']' | '{' Expr '}'
// Call = funcname '(' Expr { ',' Expr } ')', with any matching bracket pair

// Expr is a parsed, typed expression. An Expr is immutable and may be
// evaluated concurrently by any number of Evaluators.
type Expr struct {
	// n is the root node of the expression.
	n *node
	// names is the sorted list of variable names used in the expression.
	names []string
	// prec is the precision of the expression's constants.
	prec uint
}

// Parse parses an expression under a language configuration. If cfg is nil,
// the result of DefaultConfig is used. Every error Parse returns is a
// *ParseError.
func Parse(src string, cfg *Config) (*Expr, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := parser{
		scan:  lex(src, cfg),
		cfg:   cfg,
		names: make(map[string]bool),
	}
	n, err := p.expr("")
	if err != nil {
		cfg.logger.Debug("parse failed", slog.String("src", src), slog.Any("err", err))
		return nil, err
	}
	if tok := p.scan.must(); tok.kind != tokenEOF {
		err := itShouldNotHaveEndedThisWay(tok, "")
		cfg.logger.Debug("parse failed", slog.String("src", src), slog.Any("err", err))
		return nil, err
	}
	ex := &Expr{n: n, names: slices.Sorted(maps.Keys(p.names)), prec: cfg.prec}
	if cfg.logger.Enabled(log.LevelTrace) {
		cfg.logger.Trace("parsed",
			slog.String("src", src),
			slog.String("tree", ex.String()),
			slog.String("type", n.typ.String()),
			slog.Int("nodes", n.size()),
		)
	}
	return ex, nil
}

// MustParse is like Parse but panics if the expression cannot be parsed.
func MustParse(src string, cfg *Config) *Expr {
	e, err := Parse(src, cfg)
	if err != nil {
		panic("condexpr: Parse(" + strconv.Quote(src) + "): " + err.Error())
	}
	return e
}

type parser struct {
	scan *lexer
	cfg  *Config
	// names is the set of variable names that have been seen this parse.
	names map[string]bool
}

// partial is an operator awaiting its right operand. Unary partials have no
// left operand.
type partial struct {
	op   Operator
	tok  lexToken
	left *node
}

// expr parses an expression up to the first token that cannot continue it,
// which must be EOF, a close bracket, or a separator. The terminating token is
// pushed back for the caller. open is the innermost unclosed bracket, or "" at
// the top level.
func (p *parser) expr(open string) (*node, error) {
	var stack []partial
	for {
		n, err := p.operand(&stack, open)
		if err != nil {
			return nil, err
		}
		// Unary operators bind tighter than anything that can follow.
		for len(stack) > 0 && stack[len(stack)-1].left == nil {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n, err = p.unary(top, n); err != nil {
				return nil, err
			}
		}

		tok, err := p.scan.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokenOp:
			o, ok := p.cfg.binary[tok.text]
			if !ok {
				return nil, &ParseError{Kind: KindUnknownOperator, Col: tok.pos, Text: tok.text, Want: "binary operator"}
			}
			for len(stack) > 0 && stack[len(stack)-1].op.moreBinding(o) {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if n, err = p.binary(top, n); err != nil {
					return nil, err
				}
			}
			stack = append(stack, partial{op: o, tok: tok, left: n})
		case tokenEOF, tokenClose, tokenSep:
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if n, err = p.binary(top, n); err != nil {
					return nil, err
				}
			}
			p.scan.push(tok)
			return n, nil
		case tokenNum, tokenStr, tokenIdent, tokenOpen:
			return nil, &ParseError{Kind: KindUnexpectedToken, Col: tok.pos, Text: tok.text, Want: "operator or " + closing(open)}
		default:
			panic("condexpr: unknown token: " + tok.String())
		}
	}
}

// operand parses a term in operand position. Unary operators preceding it
// are added to the stack.
func (p *parser) operand(stack *[]partial, open string) (*node, error) {
	for {
		tok, err := p.scan.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokenOp:
			o, ok := p.cfg.unary[tok.text]
			if !ok {
				return nil, &ParseError{Kind: KindUnknownOperator, Col: tok.pos, Text: tok.text, Want: "operand or unary operator"}
			}
			*stack = append(*stack, partial{op: o, tok: tok})
		case tokenNum:
			return p.number(tok)
		case tokenStr:
			return constNode(String(tok.text)), nil
		case tokenIdent:
			next, err := p.scan.next()
			if err != nil {
				return nil, err
			}
			if next.kind == tokenOpen {
				return p.call(tok, next)
			}
			p.scan.push(next)
			return p.ident(tok)
		case tokenOpen:
			return p.group(tok)
		case tokenEOF:
			return nil, &ParseError{Kind: KindUnexpectedEOF, Col: tok.pos, Want: "operand"}
		case tokenClose, tokenSep:
			return nil, &ParseError{Kind: KindUnexpectedToken, Col: tok.pos, Text: tok.text, Want: "operand"}
		default:
			panic("condexpr: unknown token: " + tok.String())
		}
	}
}

// number parses a numeric literal at the configured precision.
func (p *parser) number(tok lexToken) (*node, error) {
	x, _, err := new(big.Float).SetPrec(p.cfg.prec).Parse(tok.text, 10)
	if err != nil {
		// The lexer only produces well-formed literals, so the only failures
		// are exponents out of range.
		if !strings.Contains(err.Error(), "exponent overflow") && !strings.Contains(err.Error(), "out of range") {
			return nil, &ParseError{Kind: KindBadNumber, Col: tok.pos, Text: tok.text}
		}
		x = new(big.Float).SetPrec(p.cfg.prec)
		if strings.ContainsAny(tok.text, "eE") && strings.Contains(tok.text, "-") {
			x.SetInt64(0)
		} else {
			x.SetInf(false)
		}
	}
	return constNode(Number(x)), nil
}

// ident resolves a name in operand position.
func (p *parser) ident(tok lexToken) (*node, error) {
	switch tok.text {
	case "true":
		return constNode(Bool(true)), nil
	case "false":
		return constNode(Bool(false)), nil
	}
	if p.cfg.reserved[tok.text] {
		return nil, &ParseError{Kind: KindReserved, Col: tok.pos, Text: tok.text, Want: "operand"}
	}
	if v, ok := p.cfg.consts[tok.text]; ok {
		return namedConst(tok.text, v), nil
	}
	if t, ok := p.cfg.vars[tok.text]; ok {
		p.names[tok.text] = true
		return varNode(tok.text, t), nil
	}
	err := &ParseError{Kind: KindUnknownVariable, Col: tok.pos, Text: tok.text}
	if fns := p.cfg.funcs.Lookup(tok.text); len(fns) > 0 {
		// A function name without arguments.
		err.Want = "argument list after function name"
		return nil, err
	}
	names := slices.Concat(slices.Collect(maps.Keys(p.cfg.vars)), slices.Collect(maps.Keys(p.cfg.consts)))
	slices.Sort(names)
	err.Suggest = suggest(tok.text, names)
	return nil, err
}

// group parses a bracketed subexpression after its open bracket.
func (p *parser) group(open lexToken) (*node, error) {
	n, err := p.expr(open.text)
	if err != nil {
		return nil, err
	}
	end := p.scan.must()
	if end.kind != tokenClose || end.text != closebrackets[rightbracket(open.text)] {
		return nil, itShouldNotHaveEndedThisWay(end, open.text)
	}
	return n, nil
}

// call parses the argument list of a call and resolves the function.
func (p *parser) call(name, open lexToken) (*node, error) {
	want := closebrackets[rightbracket(open.text)]
	var args []*node
	for {
		// Check for an empty argument before parsing so that the error
		// describes the argument list rather than a missing operand.
		tok, err := p.scan.next()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokenSep || tok.kind == tokenClose {
			return nil, &ParseError{Kind: KindBadArgs, Col: tok.pos, Text: tok.text, Want: "argument"}
		}
		p.scan.push(tok)
		arg, err := p.expr(open.text)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		end := p.scan.must()
		switch {
		case end.kind == tokenSep:
			continue
		case end.kind == tokenClose && end.text == want:
			return p.resolve(name, args)
		default:
			return nil, itShouldNotHaveEndedThisWay(end, open.text)
		}
	}
}

// resolve finds the function for a call and builds its node, converting
// arguments accepted by the registry's compatibility rule.
func (p *parser) resolve(name lexToken, args []*node) (*node, error) {
	types := make([]Type, len(args))
	for i, a := range args {
		types[i] = a.typ
	}
	fn, err := p.cfg.funcs.Resolve(name.text, types)
	if err != nil {
		re := err.(*ResolveError)
		pe := &ParseError{Kind: re.Kind, Col: name.pos, Text: name.text, Suggest: re.Suggest}
		if re.Kind == KindNoOverload {
			pe.Text = name.text + "(" + typelist(types) + ")"
			var sigs []string
			for _, f := range p.cfg.funcs.Lookup(name.text) {
				sigs = append(sigs, f.String())
			}
			pe.Want = "one of " + strings.Join(sigs, "; ")
		}
		return nil, pe
	}
	for i, a := range args {
		if a.typ != fn.Params[i] {
			args[i] = convNode(a, fn.Params[i])
		}
	}
	return callNode(fn, args), nil
}

// unary resolves a unary partial against its operand.
func (p *parser) unary(pt partial, x *node) (*node, error) {
	t := pt.op.Op.unaryResult(x.typ)
	if t == TypeNone {
		return nil, &ParseError{
			Kind: KindTypeMismatch,
			Col:  pt.tok.pos,
			Text: pt.tok.text,
			Want: operandTypes(pt.op.Op) + " operand, got " + x.typ.String(),
		}
	}
	return unaryNode(pt.op.Op, t, x), nil
}

// binary resolves a binary partial against its right operand.
func (p *parser) binary(pt partial, r *node) (*node, error) {
	t := pt.op.Op.binaryResult(pt.left.typ, r.typ)
	if t == TypeNone {
		return nil, &ParseError{
			Kind: KindTypeMismatch,
			Col:  pt.tok.pos,
			Text: pt.tok.text,
			Want: operandTypes(pt.op.Op) + " operands, got " + pt.left.typ.String() + " and " + r.typ.String(),
		}
	}
	return binaryNode(pt.op.Op, t, pt.left, r), nil
}

// operandTypes describes the operand types an operation accepts.
func operandTypes(op Op) string {
	switch op {
	case OpNot, OpAnd, OpOr:
		return "bool"
	case OpEq, OpNe:
		return "matching"
	default:
		return "number"
	}
}

// rightbracket gets the closing bracket index for an opening bracket.
func rightbracket(left string) int {
	r, sz := utf8.DecodeRuneInString(left)
	k := strings.IndexRune(OpenBrackets, r)
	if k < 0 || sz != len(left) {
		panic("condexpr: invalid bracket " + strconv.Quote(left))
	}
	return k
}

// Vars returns the variable names used when evaluating the expression, in
// sorted order.
func (e *Expr) Vars() []string {
	return slices.Clone(e.names)
}

// Type returns the type of the expression's value.
func (e *Expr) Type() Type {
	return e.n.typ
}

// String creates a string representation of the parsed expression, with
// alternating round and square brackets grouping each term. Two expressions
// with the same structure render identically.
func (e *Expr) String() string {
	return e.n.String()
}
