// Package pii masks personally identifiable information in workflow
// payloads before they leave the engine.
package pii

import (
	"fmt"
	"regexp"
	"strings"
)

type Scanner struct {
	Name    string
	Pattern *regexp.Regexp
	Mask    string
}

var DefaultScanners = []Scanner{
	{
		Name:    "credit_card",
		Pattern: regexp.MustCompile(`\b(?:4[0-9]{3}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}|(?:4[0-9]{12}(?:[0-9]{3})?)|5[1-5][0-9]{2}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}|6(?:011|5[0-9][0-9])[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}|3[47][0-9]{2}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}|3(?:0[0-5]|[68][0-9])[0-9][- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}|(?:2131|1800|35\d{3})\d{11})\b`),
		Mask:    "****-****-****-****",
	},
	{
		Name:    "ssn",
		Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		Mask:    "***-**-****",
	},
	{
		Name:    "ipv4",
		Pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		Mask:    "*.*.*.*",
	},
	{
		Name:    "ipv6",
		Pattern: regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`),
		Mask:    "****:****:****:****:****:****:****:****",
	},
	{
		Name:    "email",
		Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`),
		Mask:    "****@****.***",
	},
	{
		Name:    "phone",
		Pattern: regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?([0-9]{3})\)?[-. ]?([0-9]{3})[-. ]?([0-9]{4})\b`),
		Mask:    "(***) ***-****",
	},
	{
		Name:    "iban",
		Pattern: regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}\b`),
		Mask:    "**** **** **** ****",
	},
}

// Named resolves scanners from DefaultScanners by name.
func Named(names []string) ([]Scanner, error) {
	out := make([]Scanner, 0, len(names))
	for _, name := range names {
		found := false
		for _, s := range DefaultScanners {
			if s.Name == name {
				out = append(out, s)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown pii scanner: %s", name)
		}
	}
	return out, nil
}

type Engine struct {
	Scanners []Scanner
}

func NewEngine(scanners ...Scanner) *Engine {
	if len(scanners) == 0 {
		return &Engine{Scanners: DefaultScanners}
	}
	return &Engine{Scanners: scanners}
}

func (e *Engine) Mask(input string) string {
	res := input
	for _, s := range e.Scanners {
		res = s.Pattern.ReplaceAllString(res, s.Mask)
	}
	return res
}

func (e *Engine) Discover(input string) []string {
	var found []string
	for _, s := range e.Scanners {
		if s.Pattern.MatchString(input) {
			found = append(found, s.Name)
		}
	}
	return found
}

// MaskPayload returns a copy of the payload with every string value run
// through the scanners. When fields is non-empty, only values under those
// keys (at any depth) are touched.
func (e *Engine) MaskPayload(payload map[string]interface{}, fields []string) map[string]interface{} {
	return MaskPayloadWith(payload, fields, e.Mask)
}

// MaskPayloadWith walks the payload and rewrites string values with mask.
// The input is never mutated; payloads are shared between nodes.
func MaskPayloadWith(payload map[string]interface{}, fields []string, mask func(string) string) map[string]interface{} {
	only := make(map[string]bool, len(fields))
	for _, f := range fields {
		only[f] = true
	}
	masked, _ := maskValue(payload, only, len(only) == 0, mask).(map[string]interface{})
	return masked
}

func maskValue(v interface{}, only map[string]bool, active bool, mask func(string) string) interface{} {
	switch val := v.(type) {
	case string:
		if active {
			return mask(val)
		}
		return val
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = maskValue(inner, only, active || only[k], mask)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = maskValue(inner, only, active, mask)
		}
		return out
	default:
		return v
	}
}

// MaskEmail keeps the first character and the domain so an operator can
// still tell accounts apart.
func MaskEmail(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) == 2 {
		if len(parts[0]) > 1 {
			return parts[0][0:1] + "****@" + parts[1]
		}
		return "*@" + parts[1]
	}
	return "****"
}

// MaskPartial shows the first and last two characters of a secret.
func MaskPartial(s string) string {
	if len(s) > 4 {
		return s[:2] + "****" + s[len(s)-2:]
	}
	return "****"
}
