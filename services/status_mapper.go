package services

import (
	"github.com/JuanCarJ/studioz-academy-sub000/gateway"
	"github.com/JuanCarJ/studioz-academy-sub000/models"
)

var externalToInternal = map[gateway.TransactionStatus]models.OrderStatus{
	gateway.StatusPending:  models.OrderStatusPending,
	gateway.StatusApproved: models.OrderStatusApproved,
	gateway.StatusDeclined: models.OrderStatusDeclined,
	gateway.StatusVoided:   models.OrderStatusVoided,
	gateway.StatusError:    models.OrderStatusError,
}

// legalTransitions lists every allowed move. Anything absent, including a
// state moving to itself, is illegal.
var legalTransitions = map[models.OrderStatus]map[models.OrderStatus]bool{
	models.OrderStatusPending: {
		models.OrderStatusApproved: true,
		models.OrderStatusDeclined: true,
		models.OrderStatusVoided:   true,
		models.OrderStatusError:    true,
	},
}

// MapExternalStatus translates a gateway status into an order status. The
// second result is false for statuses this service does not know.
func MapExternalStatus(external gateway.TransactionStatus) (models.OrderStatus, bool) {
	s, ok := externalToInternal[external]
	return s, ok
}

// IsValidTransition reports whether an order may move from current to next.
func IsValidTransition(current, next models.OrderStatus) bool {
	return legalTransitions[current][next]
}
