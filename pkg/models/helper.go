package models

import "time"

// HelperSnapshot is the read-only view of a helper that the matching and
// acceptance logic needs. The identity service owns the underlying record;
// this is just what it exposes to us.
type HelperSnapshot struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"` // "requester" or "helper"
	Verified    bool      `json:"verified"`
	Available   bool      `json:"available"`
	Active      bool      `json:"active"`
	Location    GeoPoint  `json:"location"`
	VehicleType string    `json:"vehicle_type,omitempty"`
	Rating      float64   `json:"rating"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Eligible reports whether the helper may be offered or accept tasks.
func (h HelperSnapshot) Eligible() bool {
	return h.Role == "helper" && h.Verified && h.Available && h.Active
}
