package domain

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/iago/reportflow/internal/validation"
)

const (
	minIDLength = 16
	maxIDLength = 32

	generatedIDLength = 26
)

var (
	idV1Pattern = regexp.MustCompile(`^c[0-9a-z]+$`)
	idV2Pattern = regexp.MustCompile(`^[a-z][0-9a-z]+$`)
)

// ID is an opaque aggregate identifier. The zero value means "no id".
type ID struct {
	value string
}

// NewID returns a fresh identifier: "c" followed by the base36 encoding of a
// random UUID, left-padded to a fixed width.
func NewID() ID {
	raw := uuid.New()
	encoded := new(big.Int).SetBytes(raw[:]).Text(36)
	if pad := generatedIDLength - 1 - len(encoded); pad > 0 {
		encoded = strings.Repeat("0", pad) + encoded
	}
	return ID{value: "c" + encoded}
}

// ParseID wraps an existing identifier, rejecting malformed values.
func ParseID(raw string) (ID, error) {
	if !IsValidID(raw) {
		return ID{}, &validation.Error{Field: "id", Message: "id has an invalid format: " + raw}
	}
	return ID{value: raw}, nil
}

// MustParseID is ParseID for identifiers known to be valid, e.g. test fixtures.
func MustParseID(raw string) ID {
	id, err := ParseID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// IsValidID reports whether raw is lowercase alphanumeric, 16-32 characters
// long and matches either accepted shape.
func IsValidID(raw string) bool {
	if len(raw) < minIDLength || len(raw) > maxIDLength {
		return false
	}
	return idV1Pattern.MatchString(raw) || idV2Pattern.MatchString(raw)
}

func (id ID) String() string {
	return id.value
}

func (id ID) IsZero() bool {
	return id.value == ""
}

func (id ID) Equals(other ID) bool {
	return id.value == other.value
}
