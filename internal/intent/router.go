package intent

import "restaurant-agent/internal/domain"

// HandlerID names a dialogue handler.
type HandlerID string

const (
	HandlerDelivery    HandlerID = "delivery"
	HandlerReservation HandlerID = "reservation"
	HandlerInfo        HandlerID = "info"
	HandlerMenu        HandlerID = "menu"
)

// Handlers lists every handler id in a stable order.
func Handlers() []HandlerID {
	return []HandlerID{HandlerDelivery, HandlerReservation, HandlerInfo, HandlerMenu}
}

// Route maps an intent to its handler. Intents produced by Parse are always
// members of the closed set; anything else lands on the info handler, the same
// place Parse would have sent it.
func Route(i domain.Intent) HandlerID {
	switch i {
	case domain.IntentDelivery:
		return HandlerDelivery
	case domain.IntentReservation:
		return HandlerReservation
	case domain.IntentMenu:
		return HandlerMenu
	default:
		return HandlerInfo
	}
}
