// Package evaluator provides path queries, template substitution and
// comparisons over workflow payloads. Payloads are plain maps; queries use
// gjson path syntax against their JSON form.
package evaluator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var templateRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

func marshal(payload map[string]interface{}) []byte {
	if payload == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// GetPath resolves a gjson path against the payload.
// The second return reports whether the path exists.
func GetPath(payload map[string]interface{}, path string) (interface{}, bool) {
	r := gjson.GetBytes(marshal(payload), path)
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}

// Fields builds a flat map by extracting one path per output key.
// Missing paths are simply omitted.
func Fields(payload map[string]interface{}, fields map[string]string) map[string]interface{} {
	doc := marshal(payload)
	out := make(map[string]interface{}, len(fields))
	for key, path := range fields {
		if r := gjson.GetBytes(doc, path); r.Exists() {
			out[key] = r.Value()
		}
	}
	return out
}

// Shape builds a nested map: each entry writes the value found at the source
// path into the destination path of the result. Destinations are applied in
// sorted order so collisions resolve deterministically.
func Shape(payload map[string]interface{}, shape map[string]string) (map[string]interface{}, error) {
	doc := marshal(payload)
	dests := make([]string, 0, len(shape))
	for d := range shape {
		dests = append(dests, d)
	}
	sort.Strings(dests)

	out := []byte("{}")
	for _, dest := range dests {
		r := gjson.GetBytes(doc, shape[dest])
		if !r.Exists() {
			continue
		}
		var err error
		out, err = sjson.SetBytes(out, dest, r.Value())
		if err != nil {
			return nil, fmt.Errorf("set %q: %w", dest, err)
		}
	}

	var m map[string]interface{}
	if err := json.Unmarshal(out, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ResolveTemplate substitutes {{path}} placeholders with values from the
// payload. {{.}} inserts the whole payload as JSON; missing paths resolve to
// the empty string.
func ResolveTemplate(tmpl string, payload map[string]interface{}) string {
	doc := marshal(payload)
	return templateRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		path := strings.TrimSpace(templateRe.FindStringSubmatch(m)[1])
		if path == "." {
			return string(doc)
		}
		r := gjson.GetBytes(doc, path)
		if !r.Exists() {
			return ""
		}
		if r.Type == gjson.JSON {
			return r.Raw
		}
		return r.String()
	})
}

// Comparison operators. Symbol aliases are accepted alongside the word forms.
const (
	OpEquals       = "equals"
	OpNotEquals    = "not_equals"
	OpGreater      = "greater"
	OpLess         = "less"
	OpGreaterEqual = "greater_equal"
	OpLessEqual    = "less_equal"
	OpContains     = "contains"
)

var operatorAliases = map[string]string{
	"equals": OpEquals, "=": OpEquals, "==": OpEquals,
	"not_equals": OpNotEquals, "!=": OpNotEquals, "<>": OpNotEquals,
	"greater": OpGreater, ">": OpGreater,
	"less": OpLess, "<": OpLess,
	"greater_equal": OpGreaterEqual, ">=": OpGreaterEqual,
	"less_equal": OpLessEqual, "<=": OpLessEqual,
	"contains": OpContains,
}

// KnownOperator reports whether Compare accepts the operator.
func KnownOperator(operator string) bool {
	_, ok := operatorAliases[strings.ToLower(strings.TrimSpace(operator))]
	return ok
}

// Compare fetches the field from the payload and compares it to want.
// Numbers compare numerically when both sides coerce; everything else falls
// back to string comparison. A missing field reads as the empty string.
func Compare(payload map[string]interface{}, field, operator string, want interface{}) (bool, error) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(operator))]
	if !ok {
		return false, fmt.Errorf("unknown operator %q", operator)
	}

	actual, _ := GetPath(payload, field)

	af, aok := ToFloat64(actual)
	wf, wok := ToFloat64(want)
	numeric := aok && wok

	switch op {
	case OpEquals:
		if numeric {
			return af == wf, nil
		}
		return ToString(actual) == ToString(want), nil
	case OpNotEquals:
		if numeric {
			return af != wf, nil
		}
		return ToString(actual) != ToString(want), nil
	case OpGreater:
		if numeric {
			return af > wf, nil
		}
		return ToString(actual) > ToString(want), nil
	case OpLess:
		if numeric {
			return af < wf, nil
		}
		return ToString(actual) < ToString(want), nil
	case OpGreaterEqual:
		if numeric {
			return af >= wf, nil
		}
		return ToString(actual) >= ToString(want), nil
	case OpLessEqual:
		if numeric {
			return af <= wf, nil
		}
		return ToString(actual) <= ToString(want), nil
	case OpContains:
		return strings.Contains(ToString(actual), ToString(want)), nil
	}
	return false, fmt.Errorf("unknown operator %q", operator)
}

// ToFloat64 coerces numeric types and numeric strings.
func ToFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// ToString renders a value the way templates do: scalars verbatim,
// composites as JSON, nil as the empty string.
func ToString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
