// Package rules implements the flow-level condition language: a subset of JSON-Logic
// compiled once into an explicit AST and evaluated against an execution context.
package rules

// Node is one compiled rule. The set of implementations is closed.
type Node interface {
	node()
}

type (
	// Literal is any non-operator JSON value.
	Literal struct {
		Value any
	}

	// List is a JSON array whose elements may themselves be operators.
	List struct {
		Items []Node
	}

	// Var looks up a dotted path in the evaluation context.
	Var struct {
		Path       Node
		Default    Node
		HasDefault bool
	}

	// Logical is "and" or "or" over any number of arguments.
	Logical struct {
		Op   string
		Args []Node
	}

	// Not negates the truthiness of its argument ("not" and "!").
	Not struct {
		Arg Node
	}

	// Compare is one of ==, ===, !=, !==, >, >=, <, <=.
	Compare struct {
		Op    string
		Left  Node
		Right Node
	}

	// In tests substring containment or array membership.
	In struct {
		Needle   Node
		Haystack Node
	}

	// If holds condition/result pairs with an optional trailing else.
	If struct {
		Args []Node
	}

	// Unknown is an operator outside the supported subset.
	Unknown struct {
		Op   string
		Args []Node
	}
)

func (Literal) node() {}
func (List) node()    {}
func (Var) node()     {}
func (Logical) node() {}
func (Not) node()     {}
func (Compare) node() {}
func (In) node()      {}
func (If) node()      {}
func (Unknown) node() {}

// Compile turns a decoded JSON rule into an AST. A nil rule compiles to nil, which
// always evaluates to true. Objects with exactly one key are operators; every other
// value is a literal.
func Compile(raw any) Node {
	if raw == nil {
		return nil
	}

	return compile(raw)
}

func compile(raw any) Node {
	switch value := raw.(type) {
	case []any:
		items := make([]Node, len(value))
		for i, item := range value {
			items[i] = compile(item)
		}

		return List{Items: items}
	case map[string]any:
		if len(value) != 1 {
			return Literal{Value: value}
		}

		for op, rawArgs := range value {
			return compileOperator(op, arguments(rawArgs))
		}
	}

	return Literal{Value: raw}
}

// arguments applies the JSON-Logic unary sugar: {"var": "a"} is {"var": ["a"]}.
func arguments(raw any) []Node {
	list, ok := raw.([]any)
	if !ok {
		return []Node{compile(raw)}
	}

	args := make([]Node, len(list))
	for i, item := range list {
		args[i] = compile(item)
	}

	return args
}

func compileOperator(op string, args []Node) Node {
	switch op {
	case "var":
		v := Var{Path: arg(args, 0)}
		if len(args) > 1 {
			v.Default = args[1]
			v.HasDefault = true
		}

		return v
	case "and", "or":
		return Logical{Op: op, Args: args}
	case "not", "!":
		return Not{Arg: arg(args, 0)}
	case "==", "===", "!=", "!==", ">", ">=", "<", "<=":
		return Compare{Op: op, Left: arg(args, 0), Right: arg(args, 1)}
	case "in":
		return In{Needle: arg(args, 0), Haystack: arg(args, 1)}
	case "if":
		return If{Args: args}
	default:
		return Unknown{Op: op, Args: args}
	}
}

func arg(args []Node, i int) Node {
	if i < len(args) {
		return args[i]
	}

	return Literal{}
}

// UnknownOperators lists every operator in the tree outside the supported subset.
func UnknownOperators(n Node) []string {
	var found []string

	walk(n, func(node Node) {
		if u, ok := node.(Unknown); ok {
			found = append(found, u.Op)
		}
	})

	return found
}

func walk(n Node, visit func(Node)) {
	if n == nil {
		return
	}

	visit(n)

	switch node := n.(type) {
	case List:
		for _, item := range node.Items {
			walk(item, visit)
		}
	case Var:
		walk(node.Path, visit)
		walk(node.Default, visit)
	case Logical:
		for _, a := range node.Args {
			walk(a, visit)
		}
	case Not:
		walk(node.Arg, visit)
	case Compare:
		walk(node.Left, visit)
		walk(node.Right, visit)
	case In:
		walk(node.Needle, visit)
		walk(node.Haystack, visit)
	case If:
		for _, a := range node.Args {
			walk(a, visit)
		}
	case Unknown:
		for _, a := range node.Args {
			walk(a, visit)
		}
	case Literal:
	}
}
