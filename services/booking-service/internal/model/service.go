package model

// Service is a catalog entry. Rows referenced by an appointment are never deleted.
type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	PriceMinor      int64
}
