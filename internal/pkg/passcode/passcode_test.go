package passcode

import (
	"strconv"
	"testing"
)

func TestNumericGenerate(t *testing.T) {
	gen := NewNumeric()

	for i := 0; i < 1000; i++ {
		code, err := gen.Generate()
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}

		if len(code) != Length {
			t.Fatalf("expected %d digits, got %q", Length, code)
		}

		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code is not numeric: %q", code)
		}
		if n < codeMin || n > codeMax {
			t.Fatalf("code out of range: %d", n)
		}
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"123456", true},
		{"999999", true},
		{"100000", true},
		{"012345", false},
		{"12345", false},
		{"1234567", false},
		{"12345a", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := Valid(tc.in); got != tc.want {
			t.Errorf("Valid(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
