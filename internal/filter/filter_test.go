package filter

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigitRatio(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{name: "empty", text: "", want: 0},
		{name: "no digits", text: "abcd", want: 0},
		{name: "all digits", text: "1234", want: 1},
		{name: "half", text: "ab12", want: 0.5},
		{name: "runes not bytes", text: "éé12", want: 0.5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, DigitRatio(tc.text), 1e-9)
		})
	}
}

func TestIsIndexLike(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{
			name: "prose",
			text: "Banks shall carry out periodic updation of KYC information of every customer.",
			want: false,
		},
		{
			name: "table of contents",
			text: "1.1 Scope 3\n1.2 Terms 4\n2.1 KYC 7\n2.2 CDD 11\n3.1 PEP 15\n3.2 Risk 19",
			want: true,
		},
		{
			name: "circular listing",
			text: "RBI/2023-24/12 dated April 5 on the master direction\nOther entries follow here in plain words",
			want: true,
		},
		{
			name: "department reference listing",
			text: "DOR.AML.REC.No.18/14.01.001/2023-24 Amendment to the master direction",
			want: true,
		},
		{
			name: "circular number heading",
			text: "Circular No. 45 on customer identification procedures",
			want: true,
		},
		{
			name: "reference inside prose is kept",
			text: "As set out in the circular referenced earlier, the bank must verify the address.",
			want: false,
		},
		{
			name: "whitespace only",
			text: "   \n\t ",
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsIndexLike(tc.text))
		})
	}
}

func TestIsIndexLike_ThresholdIsStrict(t *testing.T) {
	// Exactly 25% digits is not above the threshold.
	text := strings.Repeat("ab1c", 10)
	assert.InDelta(t, 0.25, DigitRatio(text), 1e-9)
	assert.False(t, IsIndexLike(text))

	assert.True(t, IsIndexLike(strings.Repeat("a12b", 10)))
}

func TestFilter_CustomConfiguration(t *testing.T) {
	f := &Filter{
		MaxDigitRatio: 0.9,
		Patterns:      []*regexp.Regexp{regexp.MustCompile(`(?m)^SKIP`)},
	}

	assert.False(t, f.IsIndexLike("1.1 Scope 3\n1.2 Terms 4"))
	assert.True(t, f.IsIndexLike("SKIP this page"))
}
