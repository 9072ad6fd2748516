package tickets

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"ms-boxoffice/internal/apperrors"

	"github.com/zeebo/blake3"
)

// Payload identifies a ticket unit. Its plain form is "{orderId}:{unitIndex}".
type Payload struct {
	OrderID   string
	UnitIndex int
}

func (p Payload) String() string {
	return fmt.Sprintf("%s:%d", p.OrderID, p.UnitIndex)
}

const tagBytes = 16

// Signer appends a keyed BLAKE3 tag to payloads so a printed code cannot be
// edited into another unit's code. A Signer without a key issues plain
// payloads.
type Signer struct {
	key     []byte
	require bool
}

// NewSigner derives a 32-byte key from secret. With require set, Parse
// rejects payloads that carry no tag.
func NewSigner(secret string, require bool) *Signer {
	s := &Signer{require: require}
	if secret != "" {
		sum := blake3.Sum256([]byte(secret))
		s.key = sum[:]
	}
	return s
}

func (s *Signer) tag(p Payload) string {
	h, err := blake3.NewKeyed(s.key)
	if err != nil {
		// key is always 32 bytes
		panic(err)
	}
	_, _ = h.Write([]byte(p.String()))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:tagBytes])
}

// Encode renders the string embedded in the QR image.
func (s *Signer) Encode(p Payload) string {
	if s == nil || s.key == nil {
		return p.String()
	}
	return p.String() + ":" + s.tag(p)
}

// Parse reads a scanned string back into a payload, checking the tag when
// one is present.
func (s *Signer) Parse(raw string) (Payload, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return Payload{}, apperrors.ErrInvalidPayload.Newf("expected orderId:unitIndex, got %q", raw)
	}
	if parts[0] == "" {
		return Payload{}, apperrors.ErrInvalidPayload.Newf("missing order id in %q", raw)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 {
		return Payload{}, apperrors.ErrInvalidPayload.Newf("bad unit index in %q", raw)
	}
	p := Payload{OrderID: parts[0], UnitIndex: idx}

	if len(parts) == 2 {
		if s != nil && s.require {
			return Payload{}, apperrors.ErrInvalidPayload.Newf("unsigned ticket code")
		}
		return p, nil
	}
	if s == nil || s.key == nil {
		// no key configured, the tag cannot be checked
		return p, nil
	}
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(s.tag(p))) != 1 {
		return Payload{}, apperrors.ErrInvalidPayload.Newf("ticket code signature mismatch")
	}
	return p, nil
}
