package model

import (
	"crypto/rand"
	"math/big"
	"time"
)

const linkKeyLength = 20

// GenerateLinkKey returns a fresh view-only link key.
func GenerateLinkKey() (string, error) {
	max := big.NewInt(int64(len(guidAlphabet)))
	buf := make([]byte, linkKeyLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = guidAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// PrivateLink is a shareable view-only key scoped to a set of nodes. An
// anonymous link additionally hides contributor identities and restricts
// visibility checks to exactly its node set.
type PrivateLink struct {
	ID        string `gorm:"primaryKey;uuid;not null"`
	Key       string `gorm:"not null;uniqueIndex"`
	Name      string
	Anonymous bool
	IsDeleted bool

	CreatorID string `gorm:"uuid;not null"`

	Nodes []*Node `gorm:"many2many:private_link_nodes"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PrivateLink) TableName() string {
	return "private_links"
}
