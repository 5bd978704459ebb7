package condexpr

import (
	"strconv"
	"strings"
)

// node is a node in the typed syntax tree of an expression. Nodes are never
// modified after construction, so trees may be shared between goroutines.
type node struct {
	kind nodeKind
	// typ is the static type of the node's value.
	typ Type
	// op is the operation of unary and binary nodes.
	op Op

	// name is the variable name of nodeVar, the function name of nodeCall, or
	// the constant name of a named nodeConst.
	name string
	// val is the value of nodeConst.
	val *Value
	fn  *TypedFunc

	left  *node
	right *node
	args  []*node
}

type nodeKind int8

const (
	nodeNone nodeKind = iota

	nodeConst  // val
	nodeVar    // lookup(name)
	nodeUnary  // op left
	nodeBinary // left op right
	nodeCall   // fn(args...)
	nodeConv   // left converted to typ
)

var nodenames = [...]string{
	nodeNone:   "None",
	nodeConst:  "Const",
	nodeVar:    "Var",
	nodeUnary:  "Unary",
	nodeBinary: "Binary",
	nodeCall:   "Call",
	nodeConv:   "Conv",
}

func (k nodeKind) String() string {
	if k < 0 || int(k) >= len(nodenames) {
		return "nodeKind(" + strconv.Itoa(int(k)) + ")"
	}
	return nodenames[k]
}

func constNode(v *Value) *node {
	return &node{kind: nodeConst, typ: v.Type(), val: v}
}

func namedConst(name string, v *Value) *node {
	return &node{kind: nodeConst, typ: v.Type(), name: name, val: v}
}

func varNode(name string, typ Type) *node {
	return &node{kind: nodeVar, typ: typ, name: name}
}

func unaryNode(op Op, typ Type, x *node) *node {
	return &node{kind: nodeUnary, typ: typ, op: op, left: x}
}

func binaryNode(op Op, typ Type, l, r *node) *node {
	return &node{kind: nodeBinary, typ: typ, op: op, left: l, right: r}
}

func callNode(fn *TypedFunc, args []*node) *node {
	return &node{kind: nodeCall, typ: fn.Result, name: fn.Name, fn: fn, args: args}
}

func convNode(x *node, typ Type) *node {
	return &node{kind: nodeConv, typ: typ, left: x}
}

// isConst reports whether n is a constant, optionally of a specific type.
func (n *node) isConst(typ Type) bool {
	return n.kind == nodeConst && (typ == TypeNone || n.typ == typ)
}

// size counts the nodes in the tree rooted at n.
func (n *node) size() int {
	k := 1
	if n.left != nil {
		k += n.left.size()
	}
	if n.right != nil {
		k += n.right.size()
	}
	for _, a := range n.args {
		k += a.size()
	}
	return k
}

func (n *node) String() string {
	var b strings.Builder
	n.fmt(&b, false)
	return b.String()
}

// fmt renders n with every term grouped, alternating round and square
// brackets by depth. Operators use their canonical symbols so that trees
// parsed under different operator tables render alike.
func (n *node) fmt(b *strings.Builder, square bool) {
	var l, r byte = '(', ')'
	if square {
		l, r = '[', ']'
	}
	b.WriteByte(l)
	defer b.WriteByte(r)
	switch n.kind {
	case nodeConst:
		if n.name != "" {
			b.WriteString(n.name)
		} else {
			b.WriteString(n.val.String())
		}
	case nodeVar:
		b.WriteString(n.name)
	case nodeUnary:
		b.WriteString(n.op.Symbol())
		n.left.fmt(b, !square)
	case nodeBinary:
		n.left.fmt(b, !square)
		b.WriteByte(' ')
		b.WriteString(n.op.Symbol())
		b.WriteByte(' ')
		n.right.fmt(b, !square)
	case nodeCall:
		b.WriteString(n.name)
		fmtargs(b, n.args, !square)
	case nodeConv:
		b.WriteString(n.typ.String())
		fmtargs(b, []*node{n.left}, !square)
	default:
		panic("condexpr: invalid node kind " + n.kind.String() + " after writing " + b.String())
	}
}

func fmtargs(b *strings.Builder, args []*node, square bool) {
	var l, r byte = '(', ')'
	if square {
		l, r = '[', ']'
	}
	b.WriteByte(l)
	defer b.WriteByte(r)
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.fmt(b, !square)
	}
}

// vars adds the names of variables used under n to names.
func (n *node) vars(names map[string]bool) {
	switch n.kind {
	case nodeVar:
		names[n.name] = true
	case nodeCall:
		for _, a := range n.args {
			a.vars(names)
		}
	default:
		if n.left != nil {
			n.left.vars(names)
		}
		if n.right != nil {
			n.right.vars(names)
		}
	}
}
