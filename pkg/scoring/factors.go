package scoring

import "math"

type Category string

const (
	CategoryBeginner Category = "Beginner"
	CategoryCasual   Category = "Casual Trader"
	CategoryActive   Category = "Active Trader"
	CategoryExpert   Category = "Expert Trader"
	CategoryWhale    Category = "Whale"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Component maxima.
const (
	MaxFrequency       = 25
	MaxDiversification = 20
	MaxTradeSize       = 20
	MaxWinRate         = 20
	MaxWalletAge       = 15
)

func round(f float64) int { return int(math.Round(f)) }

// FrequencyScore saturates at 30 transfers in the window.
func FrequencyScore(totalTransfers int) int {
	return round(math.Min(float64(totalTransfers)/30*MaxFrequency, MaxFrequency))
}

func DiversificationScore(uniqueTokens int) int {
	return round(math.Min(float64(uniqueTokens)*2, MaxDiversification))
}

// TradeSizeScore maps an average trade in USD onto 0-20 in four linear bands.
func TradeSizeScore(avgUSD float64) int {
	var s float64
	switch {
	case avgUSD <= 0:
		s = 0
	case avgUSD < 1000:
		s = avgUSD / 1000 * 5
	case avgUSD < 10000:
		s = 5 + (avgUSD-1000)/9000*5
	case avgUSD < 50000:
		s = 10 + (avgUSD-10000)/40000*5
	default:
		s = 15 + math.Min((avgUSD-50000)/50000*5, 5)
	}
	return round(s)
}

// WinRate is incoming/(incoming+outgoing). It is a transfer-count proxy,
// not realised profit; the name is kept for output compatibility.
func WinRate(incoming, outgoing int) (score, percent int) {
	total := incoming + outgoing
	if total == 0 {
		return 0, 0
	}
	ratio := float64(incoming) / float64(total)
	return round(ratio * MaxWinRate), round(ratio * 100)
}

// AgeScore saturates at one year.
func AgeScore(days int) int {
	if days <= 0 {
		return 0
	}
	return round(math.Min(float64(days)/365*MaxWalletAge, MaxWalletAge))
}

func CategoryFor(score int) Category {
	switch {
	case score >= 80:
		return CategoryWhale
	case score >= 60:
		return CategoryExpert
	case score >= 40:
		return CategoryActive
	case score >= 20:
		return CategoryCasual
	}
	return CategoryBeginner
}

func ConfidenceFor(transfers, tokens int) Confidence {
	switch {
	case transfers > 50 && tokens > 3:
		return ConfidenceHigh
	case transfers > 20 && tokens > 1:
		return ConfidenceMedium
	}
	return ConfidenceLow
}
