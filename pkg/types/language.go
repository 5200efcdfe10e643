package types

import "time"

// Language is a supported sample language. Exactly one language should be
// marked as default; CSV imports fall back to it for unknown codes.
type Language struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Code      string    `json:"code"` // ISO-style code, unique (e.g. "en", "fr")
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
