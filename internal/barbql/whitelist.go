package barbql

import (
	"fmt"

	"github.com/seenimoa/barb/internal/functions"
)

// arithmeticOps are the only binary operators the language evaluates.
var arithmeticOps = map[string]bool{"+": true, "-": true, "*": true, "/": true}

// checkTree walks the tree and reports every node outside the language.
// With a registry, calls to unregistered functions are reported too. where
// names the query field being checked ("" when checking a bare expression).
func checkTree(node Node, reg *functions.Registry, where string, report func(Node, string)) {
	in := ""
	if where != "" {
		in = " in " + where
	}

	switch n := node.(type) {
	case *NumberLiteral, *StringLiteral, *BoolLiteral, *Identifier:
		return

	case *ListLiteral:
		for _, el := range n.Elements {
			checkTree(el, reg, where, report)
		}

	case *CallExpr:
		name := n.Name()
		switch {
		case name == "":
			report(n, fmt.Sprintf("Only simple function calls allowed%s (no methods)", in))
		case reg != nil && !reg.Has(name):
			report(n, fmt.Sprintf("Unknown function '%s'%s. Available: %s", name, in, reg.Available()))
		}
		for _, arg := range n.Args {
			checkTree(arg, reg, where, report)
		}

	case *BinaryExpr:
		if !arithmeticOps[n.Op] {
			report(n, fmt.Sprintf("Unsupported operator '%s'%s", n.Op, in))
		}
		checkTree(n.Left, reg, where, report)
		checkTree(n.Right, reg, where, report)

	case *CompareExpr:
		checkTree(n.Left, reg, where, report)
		for i, op := range n.Ops {
			if op == "is" || op == "is not" {
				report(n, fmt.Sprintf("Unsupported comparison '%s'%s", op, in))
			}
			checkTree(n.Comparators[i], reg, where, report)
		}

	case *LogicalExpr:
		for _, operand := range n.Operands {
			checkTree(operand, reg, where, report)
		}

	case *UnaryExpr:
		if n.Op != "-" && n.Op != "not" {
			report(n, fmt.Sprintf("Unsupported unary operator '%s'%s", n.Op, in))
		}
		checkTree(n.Operand, reg, where, report)

	default:
		report(node, fmt.Sprintf("Unsupported expression type '%s'%s", node.nodeType(), in))
	}
}
