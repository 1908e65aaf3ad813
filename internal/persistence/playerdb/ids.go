package playerdb

import (
	"crypto/rand"
	"encoding/hex"
)

func newPlayerID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return "P" + hex.EncodeToString(b[:])
}
