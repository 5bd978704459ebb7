package condexpr

import (
	"maps"
	"slices"
)

// Simplify returns an equivalent expression with constant subexpressions
// folded. Operators and pure function calls whose operands are all constant
// become constants, unary plus and double negations disappear, and && and ||
// with a constant left operand are short-circuited. Subexpressions that would
// fail to evaluate, such as 1/0, are left as they are so that the failure
// happens at evaluation. Simplify never changes the type of an expression, and
// simplifying a simplified expression gives the same expression.
//
// The receiver is not modified.
func (e *Expr) Simplify() *Expr {
	ev := NewEvaluator(e.prec)
	n := ev.simplify(e.n)
	if n == e.n {
		return e
	}
	names := make(map[string]bool, len(e.names))
	n.vars(names)
	return &Expr{n: n, names: slices.Sorted(maps.Keys(names)), prec: e.prec}
}

func (ev *Evaluator) simplify(n *node) *node {
	switch n.kind {
	case nodeConst, nodeVar:
		return n
	case nodeUnary:
		x := ev.simplify(n.left)
		switch {
		case n.op == OpPlus:
			return x
		case x.kind == nodeUnary && x.op == n.op:
			// --x and !!b
			return x.left
		case x.isConst(TypeNone):
			return ev.fold(unaryNode(n.op, n.typ, x))
		case x == n.left:
			return n
		}
		return unaryNode(n.op, n.typ, x)
	case nodeBinary:
		l, r := ev.simplify(n.left), ev.simplify(n.right)
		if l.isConst(TypeBool) {
			switch {
			case n.op == OpOr && l.val.b, n.op == OpAnd && !l.val.b:
				return l
			case n.op == OpOr, n.op == OpAnd:
				return r
			}
		}
		if l.isConst(TypeNone) && r.isConst(TypeNone) {
			return ev.fold(binaryNode(n.op, n.typ, l, r))
		}
		if l == n.left && r == n.right {
			return n
		}
		return binaryNode(n.op, n.typ, l, r)
	case nodeCall:
		var args []*node
		same, consts := true, true
		for i, a := range n.args {
			x := ev.simplify(a)
			if x != a && same {
				same = false
				args = slices.Clone(n.args[:i])
			}
			if !same {
				args = append(args, x)
			}
			consts = consts && x.isConst(TypeNone)
		}
		if same {
			args = n.args
		}
		m := n
		if !same {
			m = callNode(n.fn, args)
		}
		if consts && n.fn.Pure {
			return ev.fold(m)
		}
		return m
	case nodeConv:
		x := ev.simplify(n.left)
		if x.isConst(TypeNone) {
			return ev.fold(convNode(x, n.typ))
		}
		if x == n.left {
			return n
		}
		return convNode(x, n.typ)
	default:
		panic("condexpr: invalid AST node " + n.kind.String())
	}
}

// fold evaluates a node whose operands are constant. If evaluation fails, the
// node is returned as is.
func (ev *Evaluator) fold(n *node) *node {
	v := new(Value)
	if err := ev.Eval(&Expr{n: n, prec: ev.prec}, nil, v); err != nil {
		return n
	}
	return constNode(v)
}
