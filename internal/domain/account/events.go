package account

import "time"

const (
	EventAccountRegistered = "AccountRegistered"
	EventAddressAdded      = "AddressAdded"
)

type AccountRegistered struct {
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

type AddressAdded struct {
	UserID    string    `json:"user_id"`
	AddressID string    `json:"address_id"`
	Details   string    `json:"details"`
	AddedAt   time.Time `json:"added_at"`
}
