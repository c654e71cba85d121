package equal_test

import (
	"testing"

	"github.com/tailored-agentic-units/atomstore/equal"
)

type point struct {
	X, Y int
}

type tagged struct {
	name string
	tags []string
}

func TestSame(t *testing.T) {
	m := map[string]int{"a": 1}
	s := []int{1, 2, 3}
	p := &point{1, 2}
	tags := []string{"x"}

	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "both nil", a: nil, b: nil, want: true},
		{name: "nil and value", a: nil, b: 0, want: false},
		{name: "equal ints", a: 2, b: 2, want: true},
		{name: "different ints", a: 2, b: 3, want: false},
		{name: "int and int64", a: 2, b: int64(2), want: false},
		{name: "equal strings", a: "foo", b: "foo", want: true},
		{name: "same map", a: m, b: m, want: true},
		{name: "equal but distinct maps", a: map[string]int{"a": 1}, b: map[string]int{"a": 1}, want: false},
		{name: "same slice", a: s, b: s, want: true},
		{name: "resliced", a: s, b: s[:2], want: false},
		{name: "same pointer", a: p, b: p, want: true},
		{name: "distinct pointers", a: &point{1, 2}, b: &point{1, 2}, want: false},
		{name: "equal structs", a: point{1, 2}, b: point{1, 2}, want: true},
		{name: "struct with shared slice", a: tagged{"a", tags}, b: tagged{"a", tags}, want: true},
		{name: "struct with distinct slices", a: tagged{"a", []string{"x"}}, b: tagged{"a", []string{"x"}}, want: false},
		{name: "equal arrays", a: [2]int{1, 2}, b: [2]int{1, 2}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := equal.Same(tt.a, tt.b); got != tt.want {
				t.Errorf("Same(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestShallow(t *testing.T) {
	inner := []string{"x"}

	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "identical values", a: 1, b: 1, want: true},
		{name: "equal maps", a: map[string]int{"a": 1, "b": 2}, b: map[string]int{"a": 1, "b": 2}, want: true},
		{name: "maps differ in value", a: map[string]int{"a": 1}, b: map[string]int{"a": 2}, want: false},
		{name: "maps differ in keys", a: map[string]int{"a": 1}, b: map[string]int{"b": 1}, want: false},
		{name: "maps differ in size", a: map[string]int{"a": 1}, b: map[string]int{"a": 1, "b": 2}, want: false},
		{name: "nested values compared by identity", a: map[string][]string{"k": {"x"}}, b: map[string][]string{"k": {"x"}}, want: false},
		{name: "nested shared values", a: map[string][]string{"k": inner}, b: map[string][]string{"k": inner}, want: true},
		{name: "equal slices", a: []int{1, 2}, b: []int{1, 2}, want: true},
		{name: "slices differ", a: []int{1, 2}, b: []int{1, 3}, want: false},
		{name: "nil and empty slice", a: []int(nil), b: []int{}, want: false},
		{name: "pointers to equal structs", a: &point{1, 2}, b: &point{1, 2}, want: true},
		{name: "pointers to different structs", a: &point{1, 2}, b: &point{2, 2}, want: false},
		{name: "different types", a: []int{1}, b: []int64{1}, want: false},
		{name: "any maps", a: map[string]any{"text": "foo"}, b: map[string]any{"text": "foo"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := equal.Shallow(tt.a, tt.b); got != tt.want {
				t.Errorf("Shallow(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
