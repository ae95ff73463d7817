package monitor

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"clore-monitor-bot/clore"
	"clore-monitor-bot/whattomine"
)

// gpuEfficiency maps GPU model substrings to stock (no-overclock) mining
// efficiency coefficients. Lookup is a case-insensitive substring match,
// first entry wins.
var gpuEfficiency = []struct {
	model string
	coeff decimal.Decimal
}{
	{"3060", decimal.NewFromFloat(0.85)},
	{"3060 ti", decimal.NewFromFloat(0.83)},
	{"3070", decimal.NewFromFloat(0.82)},
	{"3080", decimal.NewFromFloat(0.80)},
	{"3090", decimal.NewFromFloat(0.78)},
	{"4090", decimal.NewFromFloat(0.82)},
	{"4070", decimal.NewFromFloat(0.83)},
	{"4070 ti", decimal.NewFromFloat(0.82)},
	{"4080", decimal.NewFromFloat(0.81)},
	{"a5000", decimal.NewFromFloat(0.81)},
	{"a4000", decimal.NewFromFloat(0.84)},
}

var defaultEfficiency = decimal.NewFromFloat(0.8)

// Estimate is a derived profitability figure for one listing.
type Estimate struct {
	Income decimal.Decimal
	Profit decimal.Decimal
	Coin   string
}

// CoinSource provides the current best coin to mine.
type CoinSource interface {
	BestCoin(ctx context.Context) whattomine.Coin
}

// EfficiencyFor resolves the mining efficiency coefficient for a GPU
// model: the user's override if set, else the first table entry whose
// key appears in the model string, else 0.8.
func EfficiencyFor(gpuModel string, override *decimal.Decimal) decimal.Decimal {
	if override != nil {
		return *override
	}
	model := strings.ToLower(gpuModel)
	for _, e := range gpuEfficiency {
		if strings.Contains(model, e.model) {
			return e.coeff
		}
	}
	return defaultEfficiency
}

// Estimate computes income and profit for a listing against the best
// coin. Any panic out of the coin lookup is contained so one bad listing
// cannot abort a whole tick; the neutral "Error" result carries zero
// profit and therefore never triggers a notification.
func (e *Engine) Estimate(ctx context.Context, listing clore.Listing, override *decimal.Decimal) (est Estimate) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("profit estimate failed", "listing", listing.ID, "panic", r)
			est = Estimate{Income: decimal.Zero, Profit: decimal.Zero, Coin: "Error"}
		}
	}()

	best := e.coins.BestCoin(ctx)
	eff := EfficiencyFor(listing.GPUModel, override)
	income := best.Profitability.Mul(decimal.NewFromInt(int64(listing.GPUCount))).Mul(eff)
	return Estimate{
		Income: income,
		Profit: income.Sub(listing.Price),
		Coin:   best.Tag,
	}
}
