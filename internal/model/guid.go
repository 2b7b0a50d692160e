package model

import (
	"crypto/rand"
	"math/big"
	"time"
)

const (
	guidAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"
	guidLength   = 5
)

// Guid is the globally unique short identifier assigned to every addressable
// node. Ids are immutable and never reused after deletion: the row outlives
// its soft-deleted target.
type Guid struct {
	ID     string `gorm:"primaryKey;not null"`
	NodeID string `gorm:"uuid;not null;uniqueIndex"`

	CreatedAt time.Time
}

func (Guid) TableName() string {
	return "guids"
}

// GenerateGuid returns a fresh candidate id. Uniqueness is enforced by the
// primary key; callers retry on collision.
func GenerateGuid() (string, error) {
	max := big.NewInt(int64(len(guidAlphabet)))
	buf := make([]byte, guidLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = guidAlphabet[n.Int64()]
	}
	return string(buf), nil
}
