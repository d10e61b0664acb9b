package idhash

import "testing"

func TestComputeTradeID_Deterministic(t *testing.T) {
	a := ComputeTradeID("CR1001", 42, 420)
	b := ComputeTradeID("CR1001", 42, 420)
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
	if a == "" {
		t.Error("empty trade id")
	}
}

func TestComputeTradeID_Distinct(t *testing.T) {
	seen := map[string]bool{}
	for _, in := range []struct {
		account string
		cid     int64
		tx      int64
	}{
		{"CR1001", 42, 420},
		{"CR1001", 43, 420},
		{"CR1001", 42, 421},
		{"CR1002", 42, 420},
	} {
		id := ComputeTradeID(in.account, in.cid, in.tx)
		if seen[id] {
			t.Errorf("collision for %+v", in)
		}
		seen[id] = true
	}
}
