package extract

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"sumbench/internal/types"
)

// scriptParser extracts functions, classes, methods, and arrow-function
// consts from JavaScript and TypeScript via tree-sitter. The TypeScript
// grammar is a superset, so one walker serves both.
type scriptParser struct {
	parser *sitter.Parser
}

func newJavaScriptParser() *scriptParser {
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	return &scriptParser{parser: p}
}

func newTypeScriptParser() *scriptParser {
	p := sitter.NewParser()
	p.SetLanguage(typescript.GetLanguage())
	return &scriptParser{parser: p}
}

// newTSXParser covers .tsx files, whose JSX syntax the plain TypeScript
// grammar rejects.
func newTSXParser() *scriptParser {
	p := sitter.NewParser()
	p.SetLanguage(tsx.GetLanguage())
	return &scriptParser{parser: p}
}

func (p *scriptParser) Parse(path string, content []byte) ([]types.CodeUnit, error) {
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
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration", "generator_function_declaration":
			units = append(units, p.functionUnit(n, content, path))
			return
		case "class_declaration":
			unit := p.classUnit(n, content, path)
			units = append(units, unit)
			if body := n.ChildByFieldName("body"); body != nil {
				for i := 0; i < int(body.NamedChildCount()); i++ {
					child := body.NamedChild(i)
					if child.Type() == "method_definition" {
						units = append(units, p.methodUnit(child, content, path, unit.Name))
					}
				}
			}
			return
		case "lexical_declaration", "variable_declaration":
			units = append(units, p.arrowUnits(n, content, path)...)
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return units, nil
}

func (p *scriptParser) functionUnit(n *sitter.Node, src []byte, path string) types.CodeUnit {
	name := nameField(n, src)
	signature := "function " + name
	if pn := n.ChildByFieldName("parameters"); pn != nil {
		signature += pn.Content(src)
	}
	return types.CodeUnit{
		Path:    path,
		Name:    name,
		Type:    types.UnitFunction,
		Content: n.Content(src),
		Metadata: types.UnitMetadata{
			StartLine:  int(n.StartPoint().Row) + 1,
			EndLine:    int(n.EndPoint().Row) + 1,
			Signature:  signature,
			Parameters: scriptParams(n.ChildByFieldName("parameters"), src),
			Exported:   isExportedScript(n),
			HasDoc:     hasLeadingComment(n),
		},
	}
}

func (p *scriptParser) classUnit(n *sitter.Node, src []byte, path string) types.CodeUnit {
	name := nameField(n, src)
	return types.CodeUnit{
		Path:    path,
		Name:    name,
		Type:    types.UnitClass,
		Content: n.Content(src),
		Metadata: types.UnitMetadata{
			StartLine: int(n.StartPoint().Row) + 1,
			EndLine:   int(n.EndPoint().Row) + 1,
			Signature: "class " + name,
			Exported:  isExportedScript(n),
			HasDoc:    hasLeadingComment(n),
		},
	}
}

func (p *scriptParser) methodUnit(n *sitter.Node, src []byte, path, className string) types.CodeUnit {
	name := nameField(n, src)
	signature := name
	if pn := n.ChildByFieldName("parameters"); pn != nil {
		signature += pn.Content(src)
	}
	return types.CodeUnit{
		Path:    path,
		Name:    className + "." + name,
		Type:    types.UnitMethod,
		Content: n.Content(src),
		Metadata: types.UnitMetadata{
			StartLine:  int(n.StartPoint().Row) + 1,
			EndLine:    int(n.EndPoint().Row) + 1,
			Signature:  signature,
			Parameters: scriptParams(n.ChildByFieldName("parameters"), src),
			Parent:     className,
			Exported:   !strings.HasPrefix(name, "#"),
			HasDoc:     hasLeadingComment(n),
		},
	}
}

// arrowUnits extracts `const f = (...) => ...` style declarations.
func (p *scriptParser) arrowUnits(decl *sitter.Node, src []byte, path string) []types.CodeUnit {
	var units []types.CodeUnit
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		child := decl.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		value := child.ChildByFieldName("value")
		if nameNode == nil || value == nil {
			continue
		}
		switch value.Type() {
		case "arrow_function", "function", "function_expression":
		default:
			continue
		}
		name := nameNode.Content(src)
		signature := "const " + name
		if pn := value.ChildByFieldName("parameters"); pn != nil {
			signature += " = " + pn.Content(src) + " => ..."
		}
		units = append(units, types.CodeUnit{
			Path:    path,
			Name:    name,
			Type:    types.UnitFunction,
			Content: decl.Content(src),
			Metadata: types.UnitMetadata{
				StartLine:  int(decl.StartPoint().Row) + 1,
				EndLine:    int(decl.EndPoint().Row) + 1,
				Signature:  signature,
				Parameters: scriptParams(value.ChildByFieldName("parameters"), src),
				Exported:   isExportedScript(decl),
				HasDoc:     hasLeadingComment(decl),
			},
		})
	}
	return units
}

func scriptParams(params *sitter.Node, src []byte) []string {
	if params == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		if name := scriptParamName(params.NamedChild(i), src); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func scriptParamName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "identifier":
		return n.Content(src)
	case "assignment_pattern":
		if left := n.ChildByFieldName("left"); left != nil {
			return scriptParamName(left, src)
		}
	case "required_parameter", "optional_parameter":
		if pat := n.ChildByFieldName("pattern"); pat != nil {
			return scriptParamName(pat, src)
		}
	case "rest_pattern":
		if id := firstChildOfType(n, "identifier"); id != nil {
			return id.Content(src)
		}
	}
	return ""
}

// isExportedScript checks for a wrapping export statement.
func isExportedScript(n *sitter.Node) bool {
	parent := n.Parent()
	return parent != nil && parent.Type() == "export_statement"
}

// hasLeadingComment reports whether a comment directly precedes the
// declaration (or its export wrapper).
func hasLeadingComment(n *sitter.Node) bool {
	node := n
	if parent := n.Parent(); parent != nil && parent.Type() == "export_statement" {
		node = parent
	}
	prev := node.PrevNamedSibling()
	return prev != nil && prev.Type() == "comment"
}
