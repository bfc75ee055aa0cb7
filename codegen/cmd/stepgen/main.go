// stepgen reads the annotated step config structs of a package and writes
// steps_metadata.json plus a markdown reference of every step type.
//
// A config struct is documented when its doc comment carries
//
//	// @step name=flatten category=schema aliases=a,b description=...
//
// Config keys come from the mapstructure tags, their constraints from the
// step tags understood by config.DecodeStep.
//
// Usage: go run ./codegen/cmd/stepgen ./steps [reference.md]
package main

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"unicode"

	json "github.com/goccy/go-json"

	"github.com/simon020286/go-transforms/config"
)

// StepMetadata describes one step type
type StepMetadata struct {
	Name        string      `json:"name"`
	Aliases     []string    `json:"aliases,omitempty"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Inputs      []InputMeta `json:"inputs"`
}

// InputMeta describes a config key of a step
type InputMeta struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Default     string   `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Description string   `json:"description,omitempty"`
}

type catalog struct {
	Version string         `json:"version"`
	Steps   []StepMetadata `json:"steps"`
}

var (
	annotation = regexp.MustCompile(`^@step\s+(.+)$`)
	// attribute names start a new value; description may contain spaces
	attribute = regexp.MustCompile(`(?:^|\s)(name|category|aliases|description)=`)
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <directory> [reference.md]\n", os.Args[0])
		os.Exit(1)
	}
	dir := os.Args[1]
	docPath := filepath.Join(dir, "STEPS.md")
	if len(os.Args) > 2 {
		docPath = os.Args[2]
	}

	steps, err := parseDirectory(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing directory: %v\n", err)
		os.Exit(1)
	}
	if len(steps) == 0 {
		fmt.Println("No step configs found")
		return
	}
	c := catalog{Version: "1.0.0", Steps: steps}

	jsonPath := filepath.Join(dir, "steps_metadata.json")
	data, err := json.MarshalIndent(c, "", "  ")
	if err == nil {
		err = os.WriteFile(jsonPath, append(data, '\n'), 0o644)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", jsonPath, err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", jsonPath)

	doc, err := renderReference(c)
	if err == nil {
		err = os.WriteFile(docPath, doc, 0o644)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", docPath, err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", docPath)
}

func parseDirectory(dir string) ([]StepMetadata, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	var steps []StepMetadata
	for _, path := range files {
		if strings.HasSuffix(path, "_test.go") || strings.HasSuffix(path, "_gen.go") {
			continue
		}
		found, err := parseFile(fset, path)
		if err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", path, err)
		}
		steps = append(steps, found...)
	}

	sort.Slice(steps, func(i, j int) bool {
		if steps[i].Category != steps[j].Category {
			return steps[i].Category < steps[j].Category
		}
		return steps[i].Name < steps[j].Name
	})
	return steps, nil
}

// parseFile returns the annotated config structs declared in a file
func parseFile(fset *token.FileSet, path string) ([]StepMetadata, error) {
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	var steps []StepMetadata
	ast.Inspect(file, func(n ast.Node) bool {
		decl, ok := n.(*ast.GenDecl)
		if !ok || decl.Tok != token.TYPE {
			return true
		}
		for _, s := range decl.Specs {
			ts := s.(*ast.TypeSpec)
			st, ok := ts.Type.(*ast.StructType)
			if !ok || !strings.HasSuffix(ts.Name.Name, "Config") {
				continue
			}
			doc := ts.Doc
			if doc == nil {
				doc = decl.Doc
			}
			meta, ok := parseAnnotation(doc)
			if !ok {
				continue
			}
			meta.Inputs = parseInputs(st)
			steps = append(steps, meta)
		}
		return false
	})
	return steps, nil
}

func parseAnnotation(doc *ast.CommentGroup) (StepMetadata, bool) {
	if doc == nil {
		return StepMetadata{}, false
	}
	for _, c := range doc.List {
		m := annotation.FindStringSubmatch(strings.TrimSpace(strings.TrimPrefix(c.Text, "//")))
		if m == nil {
			continue
		}
		attrs := parseAttributes(m[1])
		if attrs["name"] == "" {
			continue
		}
		meta := StepMetadata{
			Name:        attrs["name"],
			Category:    attrs["category"],
			Description: attrs["description"],
		}
		if a := attrs["aliases"]; a != "" {
			meta.Aliases = strings.Split(a, ",")
		}
		return meta, true
	}
	return StepMetadata{}, false
}

// parseAttributes splits "k1=v1 k2=some text" into its values
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	locs := attribute.FindAllStringSubmatchIndex(s, -1)
	for i, loc := range locs {
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		attrs[s[loc[2]:loc[3]]] = strings.TrimSpace(s[loc[1]:end])
	}
	return attrs
}

func parseInputs(st *ast.StructType) []InputMeta {
	var inputs []InputMeta
	for _, field := range st.Fields.List {
		if len(field.Names) == 0 || !field.Names[0].IsExported() {
			continue
		}
		input := InputMeta{
			Name: toSnakeCase(field.Names[0].Name),
			Type: exprString(field.Type),
		}
		if field.Tag != nil {
			tag := reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
			key, _, _ := strings.Cut(tag.Get("mapstructure"), ",")
			if key == "-" {
				continue
			}
			if key != "" {
				input.Name = key
			}
			var spec config.FieldSpec
			config.ParseStepTag(tag.Get("step"), &spec)
			input.Required = spec.Required
			input.Default = spec.Default
			input.Enum = spec.Enum
			input.Description = spec.Description
		}
		inputs = append(inputs, input)
	}
	return inputs
}

func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return "map[" + exprString(t.Key) + "]" + exprString(t.Value)
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	}
	return "any"
}

var initialisms = []string{"JSON", "URL", "API", "SQL", "ID", "AI"}

func toSnakeCase(s string) string {
	for _, word := range initialisms {
		s = strings.ReplaceAll(s, word, "_"+strings.ToLower(word)+"_")
	}

	var sb strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
	}

	parts := strings.FieldsFunc(sb.String(), func(r rune) bool { return r == '_' })
	return strings.Join(parts, "_")
}

var referenceTemplate = template.Must(template.New("reference").Funcs(template.FuncMap{
	"join": strings.Join,
	"cell": func(s string) string { return strings.ReplaceAll(s, "|", `\|`) },
}).Parse(`# Step reference

Generated by stepgen, do not edit.
{{range .Steps}}
## {{.Name}}

{{.Description}}.

Category: {{.Category}}{{if .Aliases}}. Also accepted as: {{join .Aliases ", "}}{{end}}
{{if .Inputs}}
| Key | Type | Required | Default | Description |
|-----|------|----------|---------|-------------|
{{- range .Inputs}}
| ` + "`{{.Name}}`" + ` | {{.Type}} | {{if .Required}}yes{{end}} | {{cell .Default}} | {{cell .Description}}{{if .Enum}} One of: {{cell (join .Enum ", ")}}.{{end}} |
{{- end}}
{{end}}{{end}}`))

func renderReference(c catalog) ([]byte, error) {
	var buf bytes.Buffer
	if err := referenceTemplate.Execute(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
