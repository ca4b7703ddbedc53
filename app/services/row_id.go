package services

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// RowIDFunc derives the remote id of a (sale, product) row
type RowIDFunc func(saleID, productID string) string

// defaultRowIDKey keys the hash when no installation key is configured
var defaultRowIDKey = []byte("distroapp/sales/v1")

// NewKeyedRowID derives ids with keyed BLAKE2b, shaped as a version 4 UUID so the
// remote uuid column accepts them. The same pair always yields the same id.
func NewKeyedRowID(key []byte) (RowIDFunc, error) {
	if len(key) == 0 {
		key = defaultRowIDKey
	}
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("row id key too long: %d bytes, max %d", len(key), blake2b.Size)
	}
	// Validate the key once up front
	if _, err := blake2b.New256(key); err != nil {
		return nil, fmt.Errorf("invalid row id key: %w", err)
	}

	return func(saleID, productID string) string {
		h, _ := blake2b.New256(key)
		h.Write([]byte(saleID))
		h.Write([]byte{0})
		h.Write([]byte(productID))
		sum := h.Sum(nil)

		var id uuid.UUID
		copy(id[:], sum[:16])
		id[6] = (id[6] & 0x0f) | 0x40
		id[8] = (id[8] & 0x3f) | 0x80
		return id.String()
	}, nil
}

// LegacyRowID reproduces the 32-bit string hash used by earlier releases, so rows they
// pushed keep being updated in place. Distinct pairs collide easily; prefer NewKeyedRowID.
func LegacyRowID(saleID, productID string) string {
	input := saleID + "_" + productID

	var hash int32
	for _, unit := range utf16.Encode([]rune(input)) {
		hash = (hash << 5) - hash + int32(unit)
	}

	seed := int64(hash)
	if seed < 0 {
		seed = -seed
	}

	const template = "xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx"
	var b strings.Builder
	b.Grow(len(template))
	for _, c := range template {
		switch c {
		case 'x':
			fmt.Fprintf(&b, "%x", seed%16)
			seed /= 16
		case 'y':
			fmt.Fprintf(&b, "%x", seed%4+8)
			seed /= 4
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
