package calc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1+2", "3"},
		{"2+3*4", "14"},
		{"(2+3)*4", "20"},
		{"10/4", "2.5"},
		{"0.1+0.2", "0.3"},
		{"-5+2", "-3"},
		{"--3", "3"},
		{"2*-3", "-6"},
		{"10 % 3", "1"},
		{"1,5 × 2", "3"},
		{"9 ÷ 3", "3"},
		{"  7  ", "7"},
		{".5*4", "2"},
		{"1/3", "0.33333333"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Eval(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		expr string
		want error
	}{
		{"", ErrEmpty},
		{"   ", ErrEmpty},
		{"1/0", ErrDivisionByZero},
		{"5%0", ErrDivisionByZero},
		{"1+", ErrSyntax},
		{"(1+2", ErrSyntax},
		{"1+2)", ErrSyntax},
		{"2**3", ErrSyntax},
		{"abc", ErrSyntax},
		{"1..2", ErrSyntax},
		{".", ErrSyntax},
		{"alert(1)", ErrSyntax},
		{strings.Repeat("(", 100) + "1" + strings.Repeat(")", 100), ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Eval(tt.expr)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
