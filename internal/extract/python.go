package extract

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"sumbench/internal/types"
)

// pythonParser extracts functions, classes, and methods from Python
// source using tree-sitter. Decorated definitions keep their decorators
// in the unit content; methods carry their class as parent.
type pythonParser struct {
	parser *sitter.Parser
}

func newPythonParser() *pythonParser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &pythonParser{parser: p}
}

func (p *pythonParser) Parse(path string, content []byte) ([]types.CodeUnit, error) {
	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("syntax errors in %s", path)
	}

	var units []types.CodeUnit
	var walk func(n *sitter.Node, parentClass string)
	walk = func(n *sitter.Node, parentClass string) {
		outer, node := n, n
		if n.Type() == "decorated_definition" {
			if def := n.ChildByFieldName("definition"); def != nil {
				node = def
			}
		}

		switch node.Type() {
		case "function_definition":
			units = append(units, p.functionUnit(node, outer, content, path, parentClass))
			return
		case "class_definition":
			unit := p.classUnit(node, outer, content, path)
			units = append(units, unit)
			if body := node.ChildByFieldName("body"); body != nil {
				for i := 0; i < int(body.NamedChildCount()); i++ {
					walk(body.NamedChild(i), nameField(node, content))
				}
			}
			return
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), parentClass)
		}
	}
	walk(root, "")
	return units, nil
}

func (p *pythonParser) functionUnit(node, outer *sitter.Node, src []byte, path, parentClass string) types.CodeUnit {
	name := nameField(node, src)
	params := pythonParams(node.ChildByFieldName("parameters"), src, parentClass != "")

	signature := "def " + name
	if pn := node.ChildByFieldName("parameters"); pn != nil {
		signature += pn.Content(src)
	}
	if rt := node.ChildByFieldName("return_type"); rt != nil {
		signature += " -> " + rt.Content(src)
	}

	unitType := types.UnitFunction
	unitName := name
	if parentClass != "" {
		unitType = types.UnitMethod
		unitName = parentClass + "." + name
	}

	return types.CodeUnit{
		Path:    path,
		Name:    unitName,
		Type:    unitType,
		Content: outer.Content(src),
		Metadata: types.UnitMetadata{
			StartLine:  int(outer.StartPoint().Row) + 1,
			EndLine:    int(outer.EndPoint().Row) + 1,
			Signature:  signature,
			Parameters: params,
			Parent:     parentClass,
			Exported:   !strings.HasPrefix(name, "_"),
			HasDoc:     hasDocstring(node, src),
		},
	}
}

func (p *pythonParser) classUnit(node, outer *sitter.Node, src []byte, path string) types.CodeUnit {
	name := nameField(node, src)
	signature := "class " + name
	if bases := node.ChildByFieldName("superclasses"); bases != nil {
		signature += bases.Content(src)
	}

	return types.CodeUnit{
		Path:    path,
		Name:    name,
		Type:    types.UnitClass,
		Content: outer.Content(src),
		Metadata: types.UnitMetadata{
			StartLine: int(outer.StartPoint().Row) + 1,
			EndLine:   int(outer.EndPoint().Row) + 1,
			Signature: signature,
			Exported:  !strings.HasPrefix(name, "_"),
			HasDoc:    hasDocstring(node, src),
		},
	}
}

// pythonParams collects parameter names, dropping the self/cls receiver
// on methods so signatures compare across functions and methods.
func pythonParams(params *sitter.Node, src []byte, method bool) []string {
	if params == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		var name string
		switch child.Type() {
		case "identifier":
			name = child.Content(src)
		default:
			if id := child.ChildByFieldName("name"); id != nil {
				name = id.Content(src)
			} else if id := firstChildOfType(child, "identifier"); id != nil {
				name = id.Content(src)
			}
		}
		if name == "" {
			continue
		}
		if method && i == 0 && (name == "self" || name == "cls") {
			continue
		}
		out = append(out, name)
	}
	return out
}

// hasDocstring reports whether the definition body opens with a string
// expression.
func hasDocstring(node *sitter.Node, src []byte) bool {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return false
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return false
	}
	return first.NamedChild(0).Type() == "string"
}

func nameField(node *sitter.Node, src []byte) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(src)
	}
	return ""
}

func firstChildOfType(node *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == nodeType {
			return child
		}
	}
	return nil
}
