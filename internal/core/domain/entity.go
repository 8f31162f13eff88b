package domain

import "time"

// Entity is the embedded base of every persisted record: a string identity
// assigned once at creation and two UTC lifecycle timestamps. Identity is
// never reassigned; UpdatedAt never moves backwards.
type Entity struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Base exposes the embedded Entity so generic persistence code can reach the
// identity and timestamp fields of any concrete record type.
func (e *Entity) Base() *Entity { return e }
