package workflow

import (
	"github.com/Rhymond/go-money"

	"homematch/server/internal/models"
)

// DisplayAmount renders the amount due with its currency symbol, e.g.
// "€2,900.00" for a 1,450 EUR proposed amount.
func DisplayAmount(record *models.PaymentRecord) string {
	if record == nil {
		return ""
	}
	cents := record.AmountDue.Shift(2).IntPart()
	return money.New(cents, record.Currency).Display()
}
