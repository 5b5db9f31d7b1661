package file

import (
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// NewFileID derives a 32-byte identifier for a file. The ID mixes the name
// and size with a random nonce so two announcements of the same file get
// distinct IDs.
func NewFileID(name string, size uint64) [32]byte {
	var nonce [16]byte
	_, _ = rand.Read(nonce[:])

	var sizeBytes [8]byte
	binary.BigEndian.PutUint64(sizeBytes[:], size)

	h, _ := blake2b.New256(nil)
	h.Write([]byte(name))
	h.Write(sizeBytes[:])
	h.Write(nonce[:])

	var id [32]byte
	copy(id[:], h.Sum(nil))
	return id
}
