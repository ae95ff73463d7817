package monitor

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"clore-monitor-bot/clore"
	"clore-monitor-bot/whattomine"
)

type stubCoins struct {
	coin     whattomine.Coin
	panicMsg string
}

func (s stubCoins) BestCoin(ctx context.Context) whattomine.Coin {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.coin
}

func decp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestEfficiencyFor(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		override *decimal.Decimal
		want     string
	}{
		{"override wins", "RTX 3090", decp("0.95"), "0.95"},
		{"known model", "NVIDIA GeForce RTX 3090", nil, "0.78"},
		{"case insensitive", "rtx 4090 24GB", nil, "0.82"},
		{"workstation card", "RTX A4000", nil, "0.84"},
		{"unknown model", "Radeon VII", nil, "0.8"},
		{"empty model", "", nil, "0.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EfficiencyFor(tt.model, tt.override)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("EfficiencyFor(%q) = %s, want %s", tt.model, got, tt.want)
			}
		})
	}
}

func TestEstimateMath(t *testing.T) {
	coins := stubCoins{coin: whattomine.Coin{Tag: "KAS", Profitability: decimal.NewFromInt(1)}}
	e := NewEngine(DefaultConfig(), nil, coins, nil, nil, nil)

	listing := clore.Listing{
		ID:       "42",
		GPUModel: "RTX 3070", // efficiency 0.82
		GPUCount: 12,
		Price:    decimal.NewFromFloat(4.50),
	}

	est := e.Estimate(context.Background(), listing, nil)
	if est.Coin != "KAS" {
		t.Errorf("coin = %q, want KAS", est.Coin)
	}
	if !est.Income.Equal(decimal.NewFromFloat(9.84)) {
		t.Errorf("income = %s, want 9.84", est.Income)
	}
	if !est.Profit.Equal(decimal.NewFromFloat(5.34)) {
		t.Errorf("profit = %s, want 5.34", est.Profit)
	}
}

func TestEstimateUnknownCoinYieldsNonPositiveProfit(t *testing.T) {
	coins := stubCoins{coin: whattomine.Unknown}
	e := NewEngine(DefaultConfig(), nil, coins, nil, nil, nil)

	listing := clore.Listing{GPUModel: "RTX 3090", GPUCount: 8, Price: decimal.NewFromFloat(0.10)}
	est := e.Estimate(context.Background(), listing, nil)

	if !est.Income.IsZero() {
		t.Errorf("income = %s, want 0", est.Income)
	}
	if est.Profit.IsPositive() {
		t.Errorf("profit = %s, want non-positive", est.Profit)
	}
}

func TestEstimateContainsPanic(t *testing.T) {
	coins := stubCoins{panicMsg: "boom"}
	e := NewEngine(DefaultConfig(), nil, coins, nil, nil, nil)

	listing := clore.Listing{ID: "7", GPUModel: "RTX 3090", GPUCount: 4, Price: decimal.NewFromInt(1)}
	est := e.Estimate(context.Background(), listing, nil)

	if est.Coin != "Error" {
		t.Errorf("coin = %q, want Error", est.Coin)
	}
	if !est.Income.IsZero() || !est.Profit.IsZero() {
		t.Errorf("neutral estimate expected, got income=%s profit=%s", est.Income, est.Profit)
	}
}
