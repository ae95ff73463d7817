package monitor

import (
	"fmt"
	"strings"

	"clore-monitor-bot/clore"
)

// DefaultPageSize is the number of listing results per message; Telegram
// caps message length, and 20 results stays comfortably under it.
const DefaultPageSize = 20

// FormatAlert renders one listing result for delivery. Money is rounded
// to two decimals here and only here; all comparisons upstream use full
// precision.
func FormatAlert(l clore.Listing, est Estimate) string {
	return fmt.Sprintf(
		"💻 GPU: %s x%d\n"+
			"💰 Price: $%s\n"+
			"📈 Coin: %s\n"+
			"📊 Income: $%s\n"+
			"✅ Profit: $%s\n"+
			"🆔 ID: %s",
		l.GPUModel, l.GPUCount,
		l.Price.StringFixed(2),
		est.Coin,
		est.Income.StringFixed(2),
		est.Profit.StringFixed(2),
		l.ID,
	)
}

// Paginate joins results into messages of at most pageSize results each,
// preserving order.
func Paginate(results []string, pageSize int) []string {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var pages []string
	for i := 0; i < len(results); i += pageSize {
		j := i + pageSize
		if j > len(results) {
			j = len(results)
		}
		pages = append(pages, "🔍 Check results:\n\n"+strings.Join(results[i:j], "\n\n"))
	}
	return pages
}
