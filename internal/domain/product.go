package domain

import "time"

// Product is one inventory item owned by an identity.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	AddedAt   time.Time `json:"addedAt"`
}

// ProductDraft is what extraction reads out of free text.
type ProductDraft struct {
	Name      string
	Quantity  float64
	Unit      string
	ExpiresAt time.Time
}

// RemovalRecord is kept after a product leaves the inventory.
type RemovalRecord struct {
	ProductID string
	Name      string
	AddedAt   time.Time
	ExpiresAt time.Time
	RemovedAt time.Time
	Wasted    bool
}

// WeeklyTrend compares additions over the current and the previous 7 days.
type WeeklyTrend struct {
	ThisWeek int
	LastWeek int
}

// WasteEstimate summarizes how much of the inventory went to waste.
type WasteEstimate struct {
	Removed        int
	Wasted         int
	ExpiredInStock int
	Percent        int
}
