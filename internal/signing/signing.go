// Package signing derives object keys for published artifacts. With a secret
// configured the key is an HMAC of the external ID, so bucket listings do not
// reveal which videos were requested.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

const keyPrefix = "media/"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Signer derives deterministic artifact keys.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer. An empty secret yields readable keys.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of payload.
func (s *Signer) Sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// ArtifactKey is the stable object key for externalID. The same ID always maps
// to the same key so republishing overwrites instead of accumulating objects.
func (s *Signer) ArtifactKey(externalID string) string {
	if len(s.secret) == 0 {
		return fmt.Sprintf("%syoutube_%s.mp4", keyPrefix, unsafeChars.ReplaceAllString(externalID, "_"))
	}
	return fmt.Sprintf("%s%s.mp4", keyPrefix, s.Sign("youtube:"+externalID)[:32])
}
