package shared

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.Turkish)

// FormatAmount renders a currency amount with Turkish digit grouping, e.g.
// 12500.5 -> "12.500,50 ₺". Used in validation reasons and activity details.
func FormatAmount(v float64) string {
	return moneyPrinter.Sprintf("%.2f ₺", v)
}
