package order

import "github.com/go-faster/errors"

// Status is the fulfillment lifecycle state of an order. The values are
// the exact strings used on the wire and in storage.
type Status string

const (
	StatusPending             Status = "Pending"
	StatusPackaging           Status = "Packaging"
	StatusHandedOverToCourier Status = "Handed Over to Courier"
	StatusDelivered           Status = "Delivered"
	StatusCancelled           Status = "Cancelled"
	StatusReturned            Status = "Returned"
)

// Statuses lists every valid status.
var Statuses = []Status{
	StatusPending,
	StatusPackaging,
	StatusHandedOverToCourier,
	StatusDelivered,
	StatusCancelled,
	StatusReturned,
}

// ParseStatus validates a wire string against the known statuses.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", errors.Errorf("unknown order status %q", s)
}
