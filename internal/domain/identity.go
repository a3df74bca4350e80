package domain

import "time"

// Identity is the durable user record correlated with a channel address.
type Identity struct {
	ID             string
	ChannelAddress string
	CreatedAt      time.Time
	LastActivity   time.Time
}
