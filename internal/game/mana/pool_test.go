package mana

import "testing"

func TestPoolGrowsToCap(t *testing.T) {
	pool := NewPool(10)
	for turn := 1; turn <= 12; turn++ {
		pool.StartTurn()
		want := turn
		if want > 10 {
			want = 10
		}
		if pool.Max != want || pool.Current != want {
			t.Fatalf("turn %d: expected %d/%d, got %d/%d", turn, want, want, pool.Current, pool.Max)
		}
		pool.Spend(pool.Current)
	}
}

func TestPoolSpend(t *testing.T) {
	pool := NewPool(10)
	pool.StartTurn()
	pool.StartTurn()

	if !pool.Spend(1) {
		t.Fatal("expected to spend 1 mana")
	}
	if pool.Spend(2) {
		t.Fatal("expected spending 2 with 1 remaining to fail")
	}
	if pool.Current != 1 {
		t.Fatalf("expected 1 mana remaining, got %d", pool.Current)
	}
	if pool.Spend(-1) {
		t.Fatal("expected negative spend to fail")
	}
}

func TestPoolGainIsBoundedByCap(t *testing.T) {
	pool := NewPool(3)
	pool.StartTurn()
	pool.Gain(5)
	if pool.Current != 3 {
		t.Fatalf("expected gain to stop at cap 3, got %d", pool.Current)
	}
	pool.StartTurn()
	if pool.Current != 2 || pool.Max != 2 {
		t.Fatalf("expected refill to 2/2, got %d/%d", pool.Current, pool.Max)
	}
}
