// Package model defines the core domain types shared across the guess engine.
// All prices use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of an up/down prediction.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Valid reports whether d is one of the two supported directions.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// GuessStatus is the settlement state of a guess. A guess starts PENDING and
// transitions exactly once to WON or LOST; the transition never reverses.
type GuessStatus string

const (
	StatusPending GuessStatus = "PENDING"
	StatusWon     GuessStatus = "WON"
	StatusLost    GuessStatus = "LOST"
)

// Guess is a single BTC price prediction. FinalPrice and ValidatedAt are nil
// while the guess is PENDING and are set together at settlement.
type Guess struct {
	ID           string           `json:"id" db:"id"`
	UserID       string           `json:"user_id" db:"user_id"`
	Direction    Direction        `json:"direction" db:"direction"`
	Status       GuessStatus      `json:"status" db:"status"`
	InitialPrice decimal.Decimal  `json:"initial_price" db:"initial_price"`
	FinalPrice   *decimal.Decimal `json:"final_price" db:"final_price"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	ValidatedAt  *time.Time       `json:"validated_at" db:"validated_at"`
}

// Settled reports whether the guess has left the PENDING state.
func (g *Guess) Settled() bool {
	return g.Status != StatusPending
}

// Score is a user's running win/loss tally. Points may go negative; losses
// deduct regardless of the current balance.
type Score struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Points    int64     `json:"points" db:"points"`
	Wins      int64     `json:"wins" db:"wins"`
	Losses    int64     `json:"losses" db:"losses"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// User is a registered player. Hashes never serialize to JSON.
type User struct {
	ID               string    `json:"id" db:"id"`
	Email            string    `json:"email" db:"email"`
	Name             string    `json:"name" db:"name"`
	PasswordHash     string    `json:"-" db:"password_hash"`
	RefreshTokenHash string    `json:"-" db:"refresh_token_hash"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
