package domain

// Intent selects the dialogue strategy for a turn.
type Intent string

const (
	IntentDelivery    Intent = "delivery"
	IntentReservation Intent = "reservation"
	IntentInfo        Intent = "info"
	IntentMenu        Intent = "menu"
)

// Intents lists the closed intent set in a stable order.
func Intents() []Intent {
	return []Intent{IntentDelivery, IntentReservation, IntentInfo, IntentMenu}
}

// Valid reports whether i is a member of the closed intent set.
func (i Intent) Valid() bool {
	switch i {
	case IntentDelivery, IntentReservation, IntentInfo, IntentMenu:
		return true
	}
	return false
}
