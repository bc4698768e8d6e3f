package transform

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketIncomeBoundaries(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{-5, IncomeUnder25k},
		{0, IncomeUnder25k},
		{24999.99, IncomeUnder25k},
		{25000, Income25kTo50k},
		{49999, Income25kTo50k},
		{50000, Income50kTo75k},
		{60000, Income50kTo75k},
		{75000, Income75kTo100k},
		{100000, Income100kTo125k},
		{125000, Income125kTo200k},
		{199999.5, Income125kTo200k},
		{200000, Income200kTo1M},
		{999999, Income200kTo1M},
		{1000000, Income1MPlus},
		{5e9, Income1MPlus},
		{"60000", Income50kTo75k},
		{" 200000 ", Income200kTo1M},
		{json.Number("75000"), Income75kTo100k},
		{int64(125000), Income125kTo200k},
	}
	for _, tc := range cases {
		got := BucketIncome(tc.in)
		assert.Equal(t, tc.want, got, "input %v", tc.in)
	}
}

func TestBucketIncomeIsIdempotent(t *testing.T) {
	for _, x := range []float64{-1, 0, 25000, 74999, 100000, 200000, 1e6, 1e12} {
		first := BucketIncome(x)
		assert.Equal(t, first, BucketIncome(first))
	}
	for _, label := range IncomeLabels() {
		assert.Equal(t, label, BucketIncome(label))
	}
}

func TestBucketIncomeCoversEveryLabel(t *testing.T) {
	seen := map[string]bool{}
	for x := -10000.0; x < 2e6; x += 5000 {
		label, ok := BucketIncome(x).(string)
		require.True(t, ok)
		require.True(t, IsIncomeLabel(label), "unexpected label %q", label)
		seen[label] = true
	}
	assert.Len(t, seen, 8)
}

func TestBucketIncomeMonotonic(t *testing.T) {
	index := map[string]int{}
	for i, l := range IncomeLabels() {
		index[l] = i
	}
	prev := -1
	for x := 0.0; x < 1.5e6; x += 2500 {
		idx := index[BucketIncome(x).(string)]
		assert.GreaterOrEqual(t, idx, prev)
		prev = idx
	}
}

func TestBucketIncomePassesThroughUnclassifiable(t *testing.T) {
	for _, in := range []any{"lots", "60,000", true, nil, math.NaN(), map[string]any{}} {
		got := BucketIncome(in)
		if f, ok := in.(float64); ok && math.IsNaN(f) {
			assert.True(t, math.IsNaN(got.(float64)))
			continue
		}
		assert.Equal(t, in, got)
	}
}

func TestJoinOrPassthrough(t *testing.T) {
	s, ok := JoinOrPassthrough([]string{"France", "Peru"})
	assert.True(t, ok)
	assert.Equal(t, "France, Peru", s)

	s, ok = JoinOrPassthrough([]any{"a", "b", "c"})
	assert.True(t, ok)
	assert.Equal(t, "a, b, c", s)

	s, ok = JoinOrPassthrough("already joined")
	assert.True(t, ok)
	assert.Equal(t, "already joined", s)

	for _, in := range []any{nil, "", []string{}, []any{}, 42, []any{"a", 1}} {
		_, ok := JoinOrPassthrough(in)
		assert.False(t, ok, "input %v", in)
	}
}

func TestIsTruthyToken(t *testing.T) {
	for _, in := range []any{true, "On", "Yes", "1"} {
		assert.True(t, IsTruthyToken(in), "input %v", in)
	}
	for _, in := range []any{false, "Off", "on", "yes", "true", "0", 1, nil, ""} {
		assert.False(t, IsTruthyToken(in), "input %v", in)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "", String(nil))
	assert.Equal(t, "60000", String(60000.0))
	assert.Equal(t, "12.5", String(12.5))
	assert.Equal(t, "7", String(7))
	assert.Equal(t, "true", String(true))
	assert.Equal(t, "a, b", String([]any{"a", "b"}))
}
