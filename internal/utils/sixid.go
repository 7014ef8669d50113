package utils

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// SixIDHookFunc replaces NewSixID in tests when it returns override=true.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook is nil outside tests.
var NewSixIDHook SixIDHookFunc

// SixID is the 6 random bytes behind listing, image and agent ids. Records store its
// 10 character Crockford Base32 form.
type SixID [6]byte

var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// Letters people misread for digits.
var crockfordAliases = strings.NewReplacer("O", "0", "I", "1", "L", "1", "-", "", " ", "")

// NewSixID returns a random id.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}
	var id SixID
	_, _ = rand.Read(id[:])
	return id
}

func (id SixID) String() string {
	return crockford.EncodeToString(id[:])
}

// ParseSixID decodes s case-insensitively, accepting O for 0, I and L for 1, and
// ignoring hyphens.
func ParseSixID(s string) (SixID, error) {
	s = crockfordAliases.Replace(strings.ToUpper(s))
	if len(s) != 10 {
		return SixID{}, fmt.Errorf("invalid id %q: want 10 characters", s)
	}
	raw, err := crockford.DecodeString(s)
	if err != nil || len(raw) != 6 {
		return SixID{}, fmt.Errorf("invalid id %q", s)
	}
	var id SixID
	copy(id[:], raw)
	return id, nil
}

// IsSixID reports whether s is an id rather than a slug.
func IsSixID(s string) bool {
	if len(s) != 10 {
		return false
	}
	_, err := ParseSixID(s)
	return err == nil
}
