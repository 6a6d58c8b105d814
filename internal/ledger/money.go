// Package ledger holds the fixed-point money type shared by the accounting,
// inventory and posting modules. All amounts are carried in centavos so that
// journal balances compare exactly, without floating-point drift.
package ledger

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Centavos is a peso amount in minor currency units.
type Centavos int64

var pesoPrinter = message.NewPrinter(language.English)

// Pesos returns the amount in major units, for display only.
func (c Centavos) Pesos() float64 {
	return float64(c) / 100
}

// String formats the amount as a peso value with digit grouping.
func (c Centavos) String() string {
	return pesoPrinter.Sprintf("₱%.2f", c.Pesos())
}

// MulQty multiplies a unit amount by a quantity.
func MulQty(unit Centavos, qty int64) Centavos {
	return unit * Centavos(qty)
}

// TaxOn computes a tax amount from a base and a rate in basis points,
// rounding half up. 1200 basis points is the standard 12% VAT.
func TaxOn(base Centavos, rateBasisPoints int64) Centavos {
	if base <= 0 || rateBasisPoints <= 0 {
		return 0
	}
	return Centavos((int64(base)*rateBasisPoints + 5000) / 10000)
}
