package extract

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"sumbench/internal/types"
)

// goParser extracts functions, methods, and type declarations from Go
// source with the standard library parser.
type goParser struct{}

func (p *goParser) Parse(path string, content []byte) ([]types.CodeUnit, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(content), "\n")

	var units []types.CodeUnit
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			units = append(units, p.funcUnit(fset, d, path, lines, content))
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				units = append(units, p.typeUnit(fset, d, ts, path, lines, content))
			}
		}
	}
	return units, nil
}

func (p *goParser) funcUnit(fset *token.FileSet, d *ast.FuncDecl, path string, lines []string, content []byte) types.CodeUnit {
	name := d.Name.Name
	start := fset.Position(d.Pos())
	end := fset.Position(d.End())

	unitType := types.UnitFunction
	parent := ""
	if d.Recv != nil && len(d.Recv.List) > 0 {
		unitType = types.UnitMethod
		parent = receiverType(d.Recv.List[0].Type)
	}
	unitName := name
	if parent != "" {
		unitName = parent + "." + name
	}

	var params []string
	if d.Type.Params != nil {
		for _, field := range d.Type.Params.List {
			for _, n := range field.Names {
				params = append(params, n.Name)
			}
		}
	}

	return types.CodeUnit{
		Path:     path,
		Name:     unitName,
		Type:     unitType,
		Content:  string(content[start.Offset:end.Offset]),
		Metadata: metadataAt(lines, start.Line, end.Line, params, parent, ast.IsExported(name), d.Doc != nil),
	}
}

func (p *goParser) typeUnit(fset *token.FileSet, d *ast.GenDecl, ts *ast.TypeSpec, path string, lines []string, content []byte) types.CodeUnit {
	// A single-spec declaration spans the whole decl so the content
	// keeps the "type" keyword; grouped specs span just their spec.
	from, to := d.Pos(), d.End()
	if len(d.Specs) > 1 {
		from, to = ts.Pos(), ts.End()
	}
	start := fset.Position(from)
	end := fset.Position(to)

	hasDoc := d.Doc != nil || ts.Doc != nil
	return types.CodeUnit{
		Path:     path,
		Name:     ts.Name.Name,
		Type:     types.UnitClass,
		Content:  string(content[start.Offset:end.Offset]),
		Metadata: metadataAt(lines, start.Line, end.Line, nil, "", ast.IsExported(ts.Name.Name), hasDoc),
	}
}

// metadataAt fills the shared metadata shape; the signature is the
// trimmed first line of the declaration.
func metadataAt(lines []string, startLine, endLine int, params []string, parent string, exported, hasDoc bool) types.UnitMetadata {
	signature := ""
	if startLine > 0 && startLine <= len(lines) {
		signature = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(lines[startLine-1]), "{"))
	}
	return types.UnitMetadata{
		StartLine:  startLine,
		EndLine:    endLine,
		Signature:  signature,
		Parameters: params,
		Parent:     parent,
		Exported:   exported,
		HasDoc:     hasDoc,
	}
}

// receiverType unwraps pointer and generic receivers to the named type.
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	}
	return ""
}
