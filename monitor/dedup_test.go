package monitor

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDedupSequence(t *testing.T) {
	d := NewDedup()
	profits := []int64{1, 1, -1, 1}
	wantNotify := []bool{true, true, false, true}
	wantSent := []bool{true, true, false, true}

	for i, p := range profits {
		got := d.ShouldNotify("srv-1", decimal.NewFromInt(p))
		if got != wantNotify[i] {
			t.Errorf("tick %d: ShouldNotify = %v, want %v", i+1, got, wantNotify[i])
		}
		if sent := d.Sent("srv-1"); sent != wantSent[i] {
			t.Errorf("tick %d: Sent = %v, want %v", i+1, sent, wantSent[i])
		}
	}
}

func TestDedupZeroProfitNeverNotifies(t *testing.T) {
	d := NewDedup()
	if d.ShouldNotify("srv-1", decimal.Zero) {
		t.Error("zero profit should not notify")
	}
	if d.Sent("srv-1") {
		t.Error("zero profit must not mark the listing sent")
	}
}

func TestDedupIndependentListings(t *testing.T) {
	d := NewDedup()
	d.ShouldNotify("a", decimal.NewFromInt(1))
	if d.Sent("b") {
		t.Error("listing b should be untouched by a's transition")
	}
	d.ShouldNotify("b", decimal.NewFromInt(-1))
	if !d.Sent("a") {
		t.Error("listing a state must persist across other listings' ticks")
	}
}
