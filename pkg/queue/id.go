package queue

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// newID hashes a random seed together with the current time.
func newID() string {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// only fails for an invalid size or key
		return uuid.NewString()
	}
	seed := uuid.New()
	h.Write(seed[:])
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))
	h.Write(ts[:])
	return hex.EncodeToString(h.Sum(nil))
}
