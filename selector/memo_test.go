package selector_test

import (
	"testing"

	"github.com/tailored-agentic-units/atomstore/selector"
)

func TestMemo_DefaultPolicy(t *testing.T) {
	calls := 0
	toMap := selector.Memo(func(n int) map[string]int {
		calls++
		return map[string]int{"n": n}
	}, nil)

	first := toMap(1)
	second := toMap(1)
	third := toMap(2)

	if calls != 3 {
		t.Errorf("wrapped fn called %d times, want 3", calls)
	}
	first["marker"] = 1
	if _, same := second["marker"]; !same {
		t.Error("shallow equal result should return the cached map")
	}
	if third["n"] != 2 {
		t.Errorf("third[n] = %d, want 2", third["n"])
	}
}

func TestMemo_CustomPolicy(t *testing.T) {
	neverNew := func(prev, next int) bool { return false }
	memo := selector.Memo(func(n int) int { return n }, neverNew)

	if got := memo(1); got != 1 {
		t.Errorf("first call = %d, want 1", got)
	}
	if got := memo(5); got != 1 {
		t.Errorf("second call = %d, want cached 1", got)
	}
}
