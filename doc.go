// Package condexpr implements a small typed expression language for
// conditions that drive configurable behavior.
//
// Expressions combine numbers, booleans, and strings with operators,
// variables, constants, and calls to registered functions, e.g.
// "clamp(speed * 2, 0, max_speed) > 10 && !paused". The operators, their
// priorities, and their associativity are configuration rather than syntax;
// see OperatorTable. Everything else about the language is fixed.
//
// Parse checks types and resolves function overloads once, so that an Expr
// can only fail to evaluate when a variable is unbound or an argument is
// outside the domain of an operation. An Evaluator reuses its storage, and
// evaluation writes into a caller-owned Value, so evaluating the same
// expressions repeatedly does not allocate.
//
// Numbers are arbitrary-precision binary floating-point values.
package condexpr
