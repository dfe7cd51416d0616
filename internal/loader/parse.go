package loader

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/spboyer/rmbsgrade/internal/rating"
)

// definition is a callable found by static parsing. Nothing is imported or
// executed to produce it.
type definition struct {
	function string
	class    string
	line     int

	// positional holds the names of required positional parameters, with
	// self/cls already removed for methods.
	positional []string

	// requiredKeywordOnly counts keyword-only parameters without defaults.
	requiredKeywordOnly int

	returnType           string
	returnsRatingLiteral bool
}

// parseDefinitions returns the top-level functions of a Python module and the
// public methods of its top-level classes that can be instantiated without
// arguments.
func parseDefinitions(ctx context.Context, content []byte) ([]definition, error) {
	// New parser per call; tree-sitter parsers are not safe for concurrent use.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	var defs []definition
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_definition":
			defs = append(defs, readFunction(child, content, "", false))
		case "class_definition":
			defs = append(defs, readClass(child, content)...)
		case "decorated_definition":
			staticMethod := hasDecorator(child, content, "staticmethod")
			for j := 0; j < int(child.ChildCount()); j++ {
				inner := child.Child(j)
				switch inner.Type() {
				case "function_definition":
					defs = append(defs, readFunction(inner, content, "", staticMethod))
				case "class_definition":
					defs = append(defs, readClass(inner, content)...)
				}
			}
		}
	}
	return defs, nil
}

func readClass(node *sitter.Node, content []byte) []definition {
	var className string
	var body *sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			if className == "" {
				className = child.Content(content)
			}
		case "block":
			body = child
		}
	}
	if className == "" || body == nil || strings.HasPrefix(className, "_") {
		return nil
	}

	var methods []definition
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case "function_definition":
			methods = append(methods, readFunction(child, content, className, false))
		case "decorated_definition":
			static := hasDecorator(child, content, "staticmethod")
			for j := 0; j < int(child.ChildCount()); j++ {
				if inner := child.Child(j); inner.Type() == "function_definition" {
					methods = append(methods, readFunction(inner, content, className, static))
				}
			}
		}
	}

	// The executor instantiates the class with no arguments.
	var out []definition
	for _, m := range methods {
		if m.function == "__init__" && (len(m.positional) > 0 || m.requiredKeywordOnly > 0) {
			return nil
		}
	}
	for _, m := range methods {
		if m.function != "" && !strings.HasPrefix(m.function, "_") {
			out = append(out, m)
		}
	}
	return out
}

func readFunction(node *sitter.Node, content []byte, className string, static bool) definition {
	def := definition{
		class: className,
		line:  int(node.StartPoint().Row) + 1,
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			if def.function == "" {
				def.function = child.Content(content)
			}
		case "parameters":
			def.positional, def.requiredKeywordOnly = readParameters(child, content)
		case "type":
			def.returnType = strings.Trim(strings.TrimSpace(child.Content(content)), `"'`)
		case "block":
			def.returnsRatingLiteral = returnsRatingLiteral(child, content)
		}
	}
	if className != "" && !static && len(def.positional) > 0 {
		def.positional = def.positional[1:]
	}
	return def
}

func readParameters(node *sitter.Node, content []byte) (positional []string, requiredKeywordOnly int) {
	keywordOnly := false
	add := func(name string) {
		if keywordOnly {
			requiredKeywordOnly++
			return
		}
		positional = append(positional, name)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			add(child.Content(content))
		case "typed_parameter":
			if child.NamedChildCount() == 0 {
				continue
			}
			switch inner := child.NamedChild(0); inner.Type() {
			case "identifier":
				add(inner.Content(content))
			case "list_splat_pattern":
				keywordOnly = true
			}
		case "list_splat_pattern", "keyword_separator":
			keywordOnly = true
		}
	}
	return positional, requiredKeywordOnly
}

func hasDecorator(node *sitter.Node, content []byte, name string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "decorator" {
			continue
		}
		text := strings.TrimSpace(strings.TrimPrefix(child.Content(content), "@"))
		if text == name {
			return true
		}
	}
	return false
}

// returnsRatingLiteral reports whether a function body returns a string
// literal that reads as a rating. Nested functions and classes are not
// searched.
func returnsRatingLiteral(node *sitter.Node, content []byte) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "function_definition", "class_definition", "decorated_definition", "lambda":
			continue
		case "return_statement":
			for j := 0; j < int(child.ChildCount()); j++ {
				if v := child.Child(j); v.Type() == "string" && isRatingLiteral(v.Content(content)) {
					return true
				}
			}
		}
		if returnsRatingLiteral(child, content) {
			return true
		}
	}
	return false
}

func isRatingLiteral(lit string) bool {
	lit = strings.TrimLeft(lit, "rRbBuU")
	lit = strings.Trim(lit, `"'`)
	r, err := rating.Parse(lit)
	return err == nil && r != rating.None
}
