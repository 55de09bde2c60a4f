package money

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expect      string
		expectError bool
	}{
		{
			name:   "Integer",
			input:  "100",
			expect: "100.00000000",
		},
		{
			name:   "FullScale",
			input:  "0.00000001",
			expect: "0.00000001",
		},
		{
			name:   "TruncatesBeyondScale",
			input:  "1.999999999",
			expect: "1.99999999",
		},
		{
			name:   "NegativeTruncatesTowardZero",
			input:  "-1.999999999",
			expect: "-1.99999999",
		},
		{
			name:        "NotANumber",
			input:       "abc",
			expectError: true,
		},
		{
			name:        "Empty",
			input:       "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q, got none", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := String(d); got != tt.expect {
				t.Errorf("expected %s, got %s", tt.expect, got)
			}
		})
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		op     string
		a, b   string
		expect string
	}{
		{name: "Add", op: "add", a: "1.1", b: "2.2", expect: "3.30000000"},
		{name: "AddSmallest", op: "add", a: "0.00000001", b: "0.00000001", expect: "0.00000002"},
		{name: "Sub", op: "sub", a: "10", b: "0.00000001", expect: "9.99999999"},
		{name: "SubToNegative", op: "sub", a: "1", b: "2", expect: "-1.00000000"},
		{name: "Mul", op: "mul", a: "9", b: "2", expect: "18.00000000"},
		{name: "MulCommission", op: "mul", a: "18", b: "0.015", expect: "0.27000000"},
		{name: "MulTruncates", op: "mul", a: "0.00000003", b: "0.3", expect: "0.00000000"},
		{name: "MulNoFloatError", op: "mul", a: "0.1", b: "0.2", expect: "0.02000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := MustParse(tt.a)
			b := MustParse(tt.b)

			var got string
			switch tt.op {
			case "add":
				got = String(Add(a, b))
			case "sub":
				got = String(Sub(a, b))
			case "mul":
				got = String(Mul(a, b))
			}
			if got != tt.expect {
				t.Errorf("%s(%s, %s): expected %s, got %s", tt.op, tt.a, tt.b, tt.expect, got)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		expect int
	}{
		{name: "Less", a: "1", b: "2", expect: -1},
		{name: "Equal", a: "1.50000000", b: "1.5", expect: 0},
		{name: "Greater", a: "2.00000001", b: "2", expect: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := MustParse(tt.a)
			b := MustParse(tt.b)
			if got := Cmp(a, b); got != tt.expect {
				t.Errorf("Cmp(%s, %s): expected %d, got %d", tt.a, tt.b, tt.expect, got)
			}
			if got := LessThan(a, b); got != (tt.expect < 0) {
				t.Errorf("LessThan(%s, %s): got %v", tt.a, tt.b, got)
			}
			if got := GreaterThan(a, b); got != (tt.expect > 0) {
				t.Errorf("GreaterThan(%s, %s): got %v", tt.a, tt.b, got)
			}
		})
	}

	if !IsZero(MustParse("0.00000000")) {
		t.Error("expected 0.00000000 to be zero")
	}
	if IsZero(MustParse("0.00000001")) {
		t.Error("expected 0.00000001 to be non-zero")
	}
}
