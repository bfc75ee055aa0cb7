package expression

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// functions returns the fn helper object. Every helper returns null for a null input.
func functions() map[string]any {
	return map[string]any{
		"uppercase":    upperCase,
		"lowercase":    lowerCase,
		"contains":     contains,
		"trim":         trim,
		"concat":       concat,
		"coalesce":     coalesce,
		"replace":      replace,
		"str":          str,
		"toInt":        toInt,
		"toDouble":     toDouble,
		"toJson":       toJSON,
		"fromJson":     fromJSON,
		"now":          now,
		"timestampAdd": timestampAdd,
		"unaccent":     unaccent,
		"normalize":    normalize,
		"dateFormat":   dateFormat,
		"isBlank":      isBlank,
		"substring":    substring,
	}
}

func upperCase(v any) any {
	if v == nil {
		return nil
	}
	return strings.ToUpper(cast.ToString(v))
}

func lowerCase(v any) any {
	if v == nil {
		return nil
	}
	return strings.ToLower(cast.ToString(v))
}

func contains(v, sub any) bool {
	if v == nil || sub == nil {
		return false
	}
	return strings.Contains(cast.ToString(v), cast.ToString(sub))
}

func trim(v any) any {
	if v == nil {
		return nil
	}
	return strings.TrimSpace(cast.ToString(v))
}

func concat(values ...any) string {
	var sb strings.Builder
	for _, v := range values {
		if v == nil {
			continue
		}
		sb.WriteString(str(v).(string))
	}
	return sb.String()
}

func coalesce(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// replace substitutes every match of the regular expression pattern
func replace(v, pattern, replacement any) (any, error) {
	if v == nil {
		return nil, nil
	}
	re, err := regexp.Compile(cast.ToString(pattern))
	if err != nil {
		return nil, fmt.Errorf("fn.replace: %w", err)
	}
	return re.ReplaceAllString(cast.ToString(v), cast.ToString(replacement)), nil
}

func str(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return cast.ToString(v)
}

func toInt(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return nil, fmt.Errorf("fn.toInt: %w", err)
	}
	return i, nil
}

func toDouble(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, fmt.Errorf("fn.toDouble: %w", err)
	}
	return f, nil
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fn.toJson: %w", err)
	}
	return string(b), nil
}

func fromJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(cast.ToString(v)), &out); err != nil {
		return nil, fmt.Errorf("fn.fromJson: %w", err)
	}
	return out, nil
}

// now returns the current time in epoch milliseconds
func now() int64 {
	return time.Now().UnixMilli()
}

// timestampAdd adds delta units to a timestamp given in epoch millis or as an ISO string.
// Units: years, months, days, hours, minutes, seconds, millis.
func timestampAdd(v any, delta int64, unit string) (any, error) {
	if v == nil {
		return nil, nil
	}
	var t time.Time
	switch x := v.(type) {
	case int64:
		t = time.UnixMilli(x).UTC()
	case float64:
		t = time.UnixMilli(int64(x)).UTC()
	default:
		parsed, err := cast.ToTimeE(v)
		if err != nil {
			return nil, fmt.Errorf("fn.timestampAdd: %w", err)
		}
		t = parsed.UTC()
	}

	switch strings.ToLower(unit) {
	case "years", "year":
		t = t.AddDate(int(delta), 0, 0)
	case "months", "month":
		t = t.AddDate(0, int(delta), 0)
	case "days", "day":
		t = t.AddDate(0, 0, int(delta))
	case "hours", "hour":
		t = t.Add(time.Duration(delta) * time.Hour)
	case "minutes", "minute":
		t = t.Add(time.Duration(delta) * time.Minute)
	case "seconds", "second":
		t = t.Add(time.Duration(delta) * time.Second)
	case "millis", "milliseconds":
		t = t.Add(time.Duration(delta) * time.Millisecond)
	default:
		return nil, fmt.Errorf("fn.timestampAdd: unknown unit %q", unit)
	}
	return t.UnixMilli(), nil
}

// dateFormat formats epoch millis with a Go layout, in UTC
func dateFormat(v any, layout string) (any, error) {
	if v == nil {
		return nil, nil
	}
	ms, err := cast.ToInt64E(v)
	if err != nil {
		return nil, fmt.Errorf("fn.dateFormat: %w", err)
	}
	return time.UnixMilli(ms).UTC().Format(layout), nil
}

func unaccent(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, cast.ToString(v))
	if err != nil {
		return nil, fmt.Errorf("fn.unaccent: %w", err)
	}
	return out, nil
}

// normalize applies Unicode NFC normalization
func normalize(v any) any {
	if v == nil {
		return nil
	}
	return norm.NFC.String(cast.ToString(v))
}

func isBlank(v any) bool {
	return v == nil || strings.TrimSpace(cast.ToString(v)) == ""
}

// substring slices by rune index; end < 0 means up to the end
func substring(v any, start, end int) any {
	if v == nil {
		return nil
	}
	r := []rune(cast.ToString(v))
	if start < 0 {
		start = 0
	}
	if end < 0 || end > len(r) {
		end = len(r)
	}
	if start > end {
		return ""
	}
	return string(r[start:end])
}
