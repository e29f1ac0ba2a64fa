package feed

import "testing"

func TestValueFirst(t *testing.T) {
	var absent Value
	if got := absent.First(); got != "" {
		t.Fatalf("expected empty string for absent value, got %q", got)
	}
	if got := (Value{}).First(); got != "" {
		t.Fatalf("expected empty string for empty value, got %q", got)
	}
	if got := (Value{"NS100"}).First(); got != "NS100" {
		t.Fatalf("expected NS100, got %q", got)
	}
	if got := (Value{"first", "second"}).First(); got != "first" {
		t.Fatalf("expected first element, got %q", got)
	}
}

func TestValueFirst_IdempotentOnScalar(t *testing.T) {
	inputs := []Value{nil, {}, {"NS100"}, {"AED 1,250,000"}, {"a", "b"}}
	for _, v := range inputs {
		once := v.First()
		twice := Value{once}.First()
		if once != twice {
			t.Fatalf("re-wrapping %q changed the result to %q", once, twice)
		}
	}
}

func TestValueInt(t *testing.T) {
	cases := []struct {
		in   Value
		want *int
	}{
		{Value{"AED 1,250,000"}, intp(1250000)},
		{Value{"1,500,000"}, intp(1500000)},
		{Value{"42"}, intp(42)},
		{Value{""}, nil},
		{nil, nil},
		{Value{"no digits here"}, nil},
		{Value{"  850 sqft "}, intp(850)},
	}
	for _, c := range cases {
		got := c.in.Int()
		if c.want == nil {
			if got != nil {
				t.Fatalf("Int(%q): expected nil, got %d", c.in.First(), *got)
			}
			continue
		}
		if got == nil {
			t.Fatalf("Int(%q): expected %d, got nil", c.in.First(), *c.want)
		}
		if *got != *c.want {
			t.Fatalf("Int(%q): expected %d, got %d", c.in.First(), *c.want, *got)
		}
	}
}

func intp(n int) *int {
	return &n
}
