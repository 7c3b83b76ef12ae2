package scoring

import (
	"fmt"
	"math"
)

const fallbackInsight = "⚠️ Unable to analyze wallet - insufficient data"

// Insights renders one line per factor, in factor order.
func Insights(md Metadata) []string {
	out := make([]string, 0, 5)

	switch n := md.TotalTransactions; {
	case n > 100:
		out = append(out, fmt.Sprintf("🔥 Very active trader (%d txs in 90 days)", n))
	case n > 50:
		out = append(out, fmt.Sprintf("⚡ Active trader (%d transactions)", n))
	case n > 20:
		out = append(out, fmt.Sprintf("📊 Moderate activity (%d transactions)", n))
	default:
		out = append(out, fmt.Sprintf("🐌 Low activity (%d transactions)", n))
	}

	switch n := md.UniqueTokens; {
	case n > 10:
		out = append(out, fmt.Sprintf("🌈 Highly diversified (%d tokens)", n))
	case n > 5:
		out = append(out, fmt.Sprintf("📊 Well-diversified portfolio (%d tokens)", n))
	case n > 1:
		out = append(out, fmt.Sprintf("💼 Focused portfolio (%d tokens)", n))
	default:
		out = append(out, "📌 Single-token holder")
	}

	switch avg := md.AvgTradeUSD; {
	case avg > 50000:
		out = append(out, fmt.Sprintf("🐋 Whale-level trades ($%.0fK avg)", math.Round(avg/1000)))
	case avg > 10000:
		out = append(out, fmt.Sprintf("💰 Large trades ($%.0fK avg)", math.Round(avg/1000)))
	case avg > 1000:
		out = append(out, fmt.Sprintf("💵 Medium trades ($%.0f avg)", math.Round(avg)))
	default:
		out = append(out, "🪙 Small trades (<$1K avg)")
	}

	switch pct := md.ProfitableTradesPercent; {
	case pct > 70:
		out = append(out, fmt.Sprintf("✅ Excellent track record (~%d%% estimated win rate)", pct))
	case pct > 50:
		out = append(out, fmt.Sprintf("👍 Positive track record (~%d%% estimated win rate)", pct))
	default:
		out = append(out, fmt.Sprintf("⚠️ Challenging track record (~%d%% estimated win rate)", pct))
	}

	switch days := md.WalletAgeInDays; {
	case days > 365:
		out = append(out, fmt.Sprintf("🏆 Veteran wallet (%d years old)", days/365))
	case days > 180:
		out = append(out, fmt.Sprintf("⭐ Experienced wallet (%d months old)", days/30))
	case days > 30:
		out = append(out, fmt.Sprintf("🌟 Emerging wallet (%d months old)", days/30))
	default:
		out = append(out, fmt.Sprintf("🌱 New wallet (%d days old)", days))
	}

	return out
}
