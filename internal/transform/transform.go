// Package transform normalises raw caller values before they are mapped onto
// document widgets.
package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Income bucket labels, in ascending order.
const (
	IncomeUnder25k   = "<$25,000"
	Income25kTo50k   = "$25,000-$49,999"
	Income50kTo75k   = "$50,000-$74,999"
	Income75kTo100k  = "$75,000-$99,999"
	Income100kTo125k = "$100,000-$124,999"
	Income125kTo200k = "$125,000-$199,999"
	Income200kTo1M   = "$200,000-$999,999"
	Income1MPlus     = "$1M+"
)

type incomeBucket struct {
	upper float64 // exclusive
	label string
}

var incomeBuckets = []incomeBucket{
	{25000, IncomeUnder25k},
	{50000, Income25kTo50k},
	{75000, Income50kTo75k},
	{100000, Income75kTo100k},
	{125000, Income100kTo125k},
	{200000, Income125kTo200k},
	{1000000, Income200kTo1M},
	{math.Inf(1), Income1MPlus},
}

// IncomeLabels returns the bucket labels in ascending order.
func IncomeLabels() []string {
	out := make([]string, len(incomeBuckets))
	for i, b := range incomeBuckets {
		out[i] = b.label
	}
	return out
}

// IsIncomeLabel reports whether s is one of the bucket labels.
func IsIncomeLabel(s string) bool {
	for _, b := range incomeBuckets {
		if b.label == s {
			return true
		}
	}
	return false
}

// BucketIncome maps an annual income onto its labelled range. Labels are
// fixed points; values that are neither numeric nor a label are returned
// unchanged.
func BucketIncome(v any) any {
	if s, ok := v.(string); ok && IsIncomeLabel(s) {
		return s
	}
	num, ok := Number(v)
	if !ok {
		return v
	}
	for _, b := range incomeBuckets {
		if num < b.upper {
			return b.label
		}
	}
	return Income1MPlus
}

// Number extracts a finite float from numeric values and numeric strings.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// JoinOrPassthrough joins a non-empty string sequence with ", " and passes a
// non-empty string through. Anything else reports false so the field is
// omitted.
func JoinOrPassthrough(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, s != ""
	}
	items, ok := Strings(v)
	if !ok || len(items) == 0 {
		return "", false
	}
	return strings.Join(items, ", "), true
}

// Strings coerces a sequence of strings. Sequences containing non-string
// items are rejected.
func Strings(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

// IsTruthyToken decides checkbox state.
func IsTruthyToken(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "On" || t == "Yes" || t == "1"
	default:
		return false
	}
}

// IsEmpty reports whether v counts as absent input.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// String is the string form written into text widgets.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	case []string:
		return strings.Join(t, ", ")
	case []any:
		if items, ok := Strings(t); ok {
			return strings.Join(items, ", ")
		}
	}
	return fmt.Sprint(v)
}
