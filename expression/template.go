package expression

import (
	"regexp"
	"strings"

	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/fieldpath"
	"github.com/simon020286/go-transforms/models"
)

var placeholderRegex = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Template is a text with {{ path }} placeholders, e.g. "Hello {{ value.name }}"
type Template struct {
	raw   string
	parts []templatePart
}

type templatePart struct {
	literal string
	path    *fieldpath.Path
}

// ParseTemplate validates every placeholder path up front
func ParseTemplate(text string) (*Template, error) {
	t := &Template{raw: text}
	last := 0
	for _, m := range placeholderRegex.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			t.parts = append(t.parts, templatePart{literal: text[last:m[0]]})
		}
		p, err := fieldpath.Parse(text[m[2]:m[3]])
		if err != nil {
			return nil, err
		}
		t.parts = append(t.parts, templatePart{path: &p})
		last = m[1]
	}
	if last < len(text) {
		t.parts = append(t.parts, templatePart{literal: text[last:]})
	}
	return t, nil
}

func (t *Template) String() string {
	return t.raw
}

// Render substitutes every placeholder with the text of the referenced value
func (t *Template) Render(tc *models.TransformContext) (string, error) {
	var sb strings.Builder
	for _, part := range t.parts {
		if part.path == nil {
			sb.WriteString(part.literal)
			continue
		}
		v, err := part.path.Resolve(tc)
		if err != nil {
			return "", models.ErrInterpolate(part.path.Raw, err)
		}
		text, err := codec.Text(v)
		if err != nil {
			return "", models.ErrInterpolate(part.path.Raw, err)
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
