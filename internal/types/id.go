// README: Identifier and geo value objects shared by modules.
package types

import (
	"crypto/rand"
	"encoding/hex"
)

// ID is a 32-char hex identifier.
type ID string

func NewID() ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return ID(hex.EncodeToString(b[:]))
}

// Ptr returns a pointer to a copy of id.
func (id ID) Ptr() *ID {
	return &id
}

type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}
