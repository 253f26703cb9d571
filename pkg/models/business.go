package models

// Business is a callable business found via the places directory or the
// fallback catalog. Immutable once fetched; only businesses with a phone
// number may enter a call set.
type Business struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Phone     string   `json:"phone"`
	Address   string   `json:"address,omitempty"`
	Rating    float64  `json:"rating,omitempty"`
	PlaceID   string   `json:"place_id,omitempty"`
	Website   string   `json:"website,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}
