// Package barbql implements the Barb expression language: a small,
// Python-flavoured grammar over table columns and registered functions. It
// provides a lexer, recursive descent parser, AST, a whitelist check that
// rejects every construct outside the language, a column-wise evaluator,
// a data-free pre-validator for whole queries, and an interactive REPL.
package barbql

import (
	"fmt"
	"strings"
)

// ════════════════════════════════════════════════════════════════════
// AST Node Types
// ════════════════════════════════════════════════════════════════════

// Node is the interface for all AST nodes.
type Node interface {
	nodeType() string
	// Pos returns the position (rune offset) in the original source.
	Pos() int
	String() string
}

// ────────────────────────────────────────────────────────────────────
// Literal Nodes
// ────────────────────────────────────────────────────────────────────

// NumberLiteral represents a numeric constant (e.g. 14, 3.14, 1e-3).
type NumberLiteral struct {
	Position int
	Value    float64
	IsInt    bool   // written without a fraction or exponent
	Raw      string // original text
}

func (n *NumberLiteral) nodeType() string { return "NumberLiteral" }
func (n *NumberLiteral) Pos() int         { return n.Position }
func (n *NumberLiteral) String() string   { return n.Raw }

// StringLiteral represents a quoted string (e.g. 'Monday', "2024-01-02").
type StringLiteral struct {
	Position int
	Value    string
}

func (n *StringLiteral) nodeType() string { return "StringLiteral" }
func (n *StringLiteral) Pos() int         { return n.Position }
func (n *StringLiteral) String() string   { return fmt.Sprintf("%q", n.Value) }

// BoolLiteral represents True/False written with a capital letter. The
// lowercase forms are plain identifiers resolved at evaluation time.
type BoolLiteral struct {
	Position int
	Value    bool
}

func (n *BoolLiteral) nodeType() string { return "BoolLiteral" }
func (n *BoolLiteral) Pos() int         { return n.Position }
func (n *BoolLiteral) String() string {
	if n.Value {
		return "True"
	}
	return "False"
}

// Identifier is a bare name: a column, or one of the literals true/false.
type Identifier struct {
	Position int
	Name     string
}

func (n *Identifier) nodeType() string { return "Identifier" }
func (n *Identifier) Pos() int         { return n.Position }
func (n *Identifier) String() string   { return n.Name }

// ListLiteral represents [a, b, c], the right-hand side of in / not in.
type ListLiteral struct {
	Position int
	Elements []Node
}

func (n *ListLiteral) nodeType() string { return "ListLiteral" }
func (n *ListLiteral) Pos() int         { return n.Position }
func (n *ListLiteral) String() string   { return "[" + joinNodes(n.Elements) + "]" }

// ────────────────────────────────────────────────────────────────────
// Expression Nodes
// ────────────────────────────────────────────────────────────────────

// BinaryExpr represents an arithmetic or bitwise operation e.g. high - low.
type BinaryExpr struct {
	Position int
	Op       string // "+", "-", "*", "/", "%", "**", "//", "&", "|", "^"
	Left     Node
	Right    Node
}

func (n *BinaryExpr) nodeType() string { return "BinaryExpr" }
func (n *BinaryExpr) Pos() int         { return n.Position }
func (n *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left.String(), n.Op, n.Right.String())
}

// UnaryExpr represents a prefix operation e.g. not green(), -close.
type UnaryExpr struct {
	Position int
	Op       string // "-", "+", "not", "~"
	Operand  Node
}

func (n *UnaryExpr) nodeType() string { return "UnaryExpr" }
func (n *UnaryExpr) Pos() int         { return n.Position }
func (n *UnaryExpr) String() string {
	if n.Op == "not" {
		return fmt.Sprintf("(not %s)", n.Operand.String())
	}
	return fmt.Sprintf("(%s%s)", n.Op, n.Operand.String())
}

// CompareExpr represents a possibly chained comparison: a < b <= c holds
// Left=a, Ops=["<", "<="], Comparators=[b, c].
type CompareExpr struct {
	Position    int
	Left        Node
	Ops         []string // ">", "<", ">=", "<=", "==", "!=", "in", "not in", "is", "is not"
	Comparators []Node
}

func (n *CompareExpr) nodeType() string { return "CompareExpr" }
func (n *CompareExpr) Pos() int         { return n.Position }
func (n *CompareExpr) String() string {
	var sb strings.Builder
	sb.WriteString("(" + n.Left.String())
	for i, op := range n.Ops {
		sb.WriteString(" " + op + " " + n.Comparators[i].String())
	}
	sb.WriteString(")")
	return sb.String()
}

// LogicalExpr represents a run of and / or over two or more operands.
type LogicalExpr struct {
	Position int
	Op       string // "and", "or"
	Operands []Node
}

func (n *LogicalExpr) nodeType() string { return "LogicalExpr" }
func (n *LogicalExpr) Pos() int         { return n.Position }
func (n *LogicalExpr) String() string {
	parts := make([]string, len(n.Operands))
	for i, o := range n.Operands {
		parts[i] = o.String()
	}
	return "(" + strings.Join(parts, " "+n.Op+" ") + ")"
}

// CallExpr represents a function invocation e.g. rolling_min(range, 7).
// Callee is an Identifier for every legal call; any other callee is a
// method call and is rejected by the whitelist.
type CallExpr struct {
	Position int
	Callee   Node
	Args     []Node
}

func (n *CallExpr) nodeType() string { return "CallExpr" }
func (n *CallExpr) Pos() int         { return n.Position }
func (n *CallExpr) String() string {
	return n.Callee.String() + "(" + joinNodes(n.Args) + ")"
}

// Name returns the function name, or "" for a method call.
func (n *CallExpr) Name() string {
	if id, ok := n.Callee.(*Identifier); ok {
		return id.Name
	}
	return ""
}

// ────────────────────────────────────────────────────────────────────
// Rejected constructs
//
// The parser accepts these so that the whitelist can name them in its
// error messages instead of failing with a bare syntax error.
// ────────────────────────────────────────────────────────────────────

// AttributeExpr represents x.attr.
type AttributeExpr struct {
	Position int
	Value    Node
	Attr     string
}

func (n *AttributeExpr) nodeType() string { return "Attribute" }
func (n *AttributeExpr) Pos() int         { return n.Position }
func (n *AttributeExpr) String() string   { return n.Value.String() + "." + n.Attr }

// SubscriptExpr represents x[i].
type SubscriptExpr struct {
	Position int
	Value    Node
	Index    Node
}

func (n *SubscriptExpr) nodeType() string { return "Subscript" }
func (n *SubscriptExpr) Pos() int         { return n.Position }
func (n *SubscriptExpr) String() string {
	return n.Value.String() + "[" + n.Index.String() + "]"
}

// TupleExpr represents a parenthesised comma list (a, b).
type TupleExpr struct {
	Position int
	Elements []Node
}

func (n *TupleExpr) nodeType() string { return "Tuple" }
func (n *TupleExpr) Pos() int         { return n.Position }
func (n *TupleExpr) String() string   { return "(" + joinNodes(n.Elements) + ")" }

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}
