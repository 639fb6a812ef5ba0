package barbql

import (
	"errors"

	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/table"
)

// ════════════════════════════════════════════════════════════════════
// Evaluator
// ════════════════════════════════════════════════════════════════════

// EvalContext carries the table the expression reads and the functions it
// may call. Evaluation never mutates either.
type EvalContext struct {
	Table    *table.Table
	Registry *functions.Registry
}

// NewEvalContext creates an evaluation context over t.
func NewEvalContext(t *table.Table, reg *functions.Registry) *EvalContext {
	return &EvalContext{Table: t, Registry: reg}
}

// Evaluate parses expr and evaluates it against t. The result is a column
// with one element per row, a scalar, or (for a bare list literal) a list.
func Evaluate(expr string, t *table.Table, reg *functions.Registry) (table.Value, error) {
	node, err := Parse(expr)
	if err != nil {
		return table.Value{}, err
	}
	return Eval(NewEvalContext(t, reg), node)
}

// ════════════════════════════════════════════════════════════════════
// Evaluator: AST Walker
// ════════════════════════════════════════════════════════════════════

// Eval evaluates an AST node and returns a Value.
func Eval(ec *EvalContext, node Node) (table.Value, error) {
	switch n := node.(type) {
	case *NumberLiteral:
		if n.IsInt {
			return table.ScalarOf(table.IntScalar(int64(n.Value))), nil
		}
		return table.ScalarOf(table.FloatScalar(n.Value)), nil

	case *StringLiteral:
		return table.ScalarOf(table.StringScalar(n.Value)), nil

	case *BoolLiteral:
		return table.ScalarOf(table.BoolScalar(n.Value)), nil

	case *Identifier:
		return evalIdentifier(ec, n)

	case *ListLiteral:
		return evalList(ec, n)

	case *CallExpr:
		return evalCall(ec, n)

	case *BinaryExpr:
		return evalBinaryExpr(ec, n)

	case *UnaryExpr:
		return evalUnaryExpr(ec, n)

	case *CompareExpr:
		return evalCompareExpr(ec, n)

	case *LogicalExpr:
		return evalLogicalExpr(ec, n)

	case nil:
		return table.Value{}, evalErrorf(ExpressionError, "Empty expression")

	default:
		return table.Value{}, evalErrorf(ExpressionError, "Unsupported expression type: %s", node.nodeType())
	}
}

func evalIdentifier(ec *EvalContext, n *Identifier) (table.Value, error) {
	switch n.Name {
	case "true":
		return table.ScalarOf(table.BoolScalar(true)), nil
	case "false":
		return table.ScalarOf(table.BoolScalar(false)), nil
	}
	if c, ok := ec.Table.Column(n.Name); ok {
		return table.ColumnOf(c), nil
	}
	return table.Value{}, evalErrorf(ExpressionError, "Unknown column '%s'. Available: %s", n.Name, ec.Table.Available())
}

func evalList(ec *EvalContext, n *ListLiteral) (table.Value, error) {
	items := make([]table.Value, 0, len(n.Elements))
	for _, el := range n.Elements {
		v, err := Eval(ec, el)
		if err != nil {
			return table.Value{}, err
		}
		if v.Type != table.ScalarValue {
			return table.Value{}, evalErrorf(TypeError, "List elements must be constants, got %s in %s", v.TypeName(), n.String())
		}
		items = append(items, v)
	}
	return table.ListOf(items), nil
}

func evalCall(ec *EvalContext, n *CallExpr) (table.Value, error) {
	name := n.Name()
	if name == "" {
		return table.Value{}, evalErrorf(ExpressionError, "Only simple function calls allowed (no methods)")
	}
	if !ec.Registry.Has(name) {
		return table.Value{}, evalErrorf(UnknownFunction, "Unknown function '%s'. Available: %s", name, ec.Registry.Available())
	}

	args := make([]table.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := Eval(ec, a)
		if err != nil {
			return table.Value{}, err
		}
		args[i] = v
	}

	v, err := ec.Registry.Call(ec.Table, name, args)
	if err != nil {
		return table.Value{}, callError(err)
	}
	return v, nil
}

// callError classifies an error returned by a registered function.
func callError(err error) error {
	var unknown *functions.UnknownFunctionError
	var argType *functions.ArgTypeError
	switch {
	case errors.As(err, &unknown):
		return &EvalError{Kind: UnknownFunction, Message: err.Error()}
	case errors.As(err, &argType):
		return &EvalError{Kind: TypeError, Message: err.Error()}
	}
	return &EvalError{Kind: ExpressionError, Message: err.Error()}
}

func evalBinaryExpr(ec *EvalContext, n *BinaryExpr) (table.Value, error) {
	if !arithmeticOps[n.Op] {
		return table.Value{}, evalErrorf(ExpressionError, "Unsupported operator: %s", n.Op)
	}
	left, err := Eval(ec, n.Left)
	if err != nil {
		return table.Value{}, err
	}
	right, err := Eval(ec, n.Right)
	if err != nil {
		return table.Value{}, err
	}
	return arithmetic(n.Op, left, right, ec.Table.Len())
}

func evalUnaryExpr(ec *EvalContext, n *UnaryExpr) (table.Value, error) {
	operand, err := Eval(ec, n.Operand)
	if err != nil {
		return table.Value{}, err
	}
	switch n.Op {
	case "-":
		return negate(operand)
	case "not":
		return logicalNot(operand)
	}
	return table.Value{}, evalErrorf(ExpressionError, "Unsupported unary operator: %s", n.Op)
}

// evalCompareExpr evaluates a chain a op1 b op2 c as (a op1 b) and (b op2 c),
// each operand evaluated once.
func evalCompareExpr(ec *EvalContext, n *CompareExpr) (table.Value, error) {
	left, err := Eval(ec, n.Left)
	if err != nil {
		return table.Value{}, err
	}
	size := ec.Table.Len()

	var result table.Value
	for i, op := range n.Ops {
		right, err := Eval(ec, n.Comparators[i])
		if err != nil {
			return table.Value{}, err
		}
		step, err := compare(op, left, right, size)
		if err != nil {
			return table.Value{}, err
		}
		if i == 0 {
			result = step
		} else if result, err = logical("and", []table.Value{result, step}, size); err != nil {
			return table.Value{}, err
		}
		left = right
	}
	return result, nil
}

func evalLogicalExpr(ec *EvalContext, n *LogicalExpr) (table.Value, error) {
	operands := make([]table.Value, len(n.Operands))
	for i, o := range n.Operands {
		v, err := Eval(ec, o)
		if err != nil {
			return table.Value{}, err
		}
		operands[i] = v
	}
	return logical(n.Op, operands, ec.Table.Len())
}
