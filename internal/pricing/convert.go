package pricing

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	secondsPerHour = decimal.NewFromInt(3600)
	weiPerToken    = decimal.New(1, 18)
)

// USDPerHourToWeiPerSecond converts a USD/hour rate to the wire unit the
// marketplace bids in: wei per second, rounded to the nearest integer.
func USDPerHourToWeiPerSecond(usdPerHour decimal.Decimal) *big.Int {
	weiPerSecond := usdPerHour.Mul(weiPerToken).Div(secondsPerHour)
	return weiPerSecond.Round(0).BigInt()
}

// WeiPerSecondToUSDPerHour is the inverse, used for display and for
// normalizing the predictor's response into PriceCache units.
func WeiPerSecondToUSDPerHour(weiPerSecond *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(weiPerSecond, 0).Mul(secondsPerHour).Div(weiPerToken)
}

// FormatPriceUSDPerHour renders a rate the way the marketplace UI and the
// node table both expect: "12.3400 USD/h".
func FormatPriceUSDPerHour(usdPerHour decimal.Decimal) string {
	return fmt.Sprintf("%.4f USD/h", usdPerHour.InexactFloat64())
}

// ParsePriceUSDPerHour parses a "<number> USD/h" or "<number>USD/s" string,
// the unit suffix config authors and the marketplace both use for prices.
// A USD/s value is converted to USD per hour.
func ParsePriceUSDPerHour(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	var numeric string
	switch {
	case strings.HasSuffix(trimmed, "USD/h"):
		numeric = strings.TrimSpace(strings.TrimSuffix(trimmed, "USD/h"))
	case strings.HasSuffix(trimmed, "USD/s"):
		numeric = strings.TrimSpace(strings.TrimSuffix(trimmed, "USD/s"))
	default:
		return decimal.Zero, fmt.Errorf("cannot parse price %q: must end in USD/h or USD/s", s)
	}
	if _, err := strconv.ParseFloat(numeric, 64); err != nil {
		return decimal.Zero, fmt.Errorf("cannot parse price %q: %w", s, err)
	}
	price, err := decimal.NewFromString(numeric)
	if err != nil {
		return decimal.Zero, err
	}
	if strings.HasSuffix(trimmed, "USD/s") {
		price = price.Mul(secondsPerHour)
	}
	return price, nil
}
