package domain

import "time"

// ProductKey is one windows activation key export row. Upserts are keyed on
// (ComputerName, ProductKey).
type ProductKey struct {
	ID            int64
	ComputerName  string
	WindowsOS     string
	ProductKey    string
	SerialNumber  string
	Status        string
	CreatedAt     *time.Time
	ActivationAt  *time.Time
	LastCheckedAt *time.Time
	IsCurrent     bool
}
