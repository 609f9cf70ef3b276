package model

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	MySQLFormat = "2006-01-02 15:04:05"
)

// NewBatchID returns an opaque identifier for a submitted batch.
func NewBatchID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func inArray(s []string, item string) bool {
	for _, m := range s {
		if m == item {
			return true
		}
	}
	return false
}
