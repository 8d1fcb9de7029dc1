package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"whole", "350", 35000},
		{"cents", "350.25", 35025},
		{"negative uses magnitude", "-350.00", 35000},
		{"half rounds up", "0.005", 1},
		{"below half rounds down", "0.004", 0},
		{"negative half rounds up in magnitude", "-10.125", 1013},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MinorUnits(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("150.05").Equal(FromMinorUnits(15005)))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"350.00", "350.00", true},
		{"350,00", "350.00", true},
		{"1 234,50 сом", "1234.50", true},
		{"1,234.50", "1234.50", true},
		{"1.234,50", "1234.50", true},
		{"1,234,567", "1234567.00", true},
		{"350.00 KGS", "350.00", true},
		{"3", "3.00", true},
		{"-350.00", "-350.00", true},
		{"−1 234,50", "-1234.50", true},
		{"т. 350", "350.00", true},
		{"—", "0.00", false},
		{"n/a", "0.00", false},
		{"", "0.00", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Parse(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}
