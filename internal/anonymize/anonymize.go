// Package anonymize de-identifies patient records before they are
// persisted: stable pseudonymous identifiers and scrubbed free text.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// Anonymizer derives pseudonymous identifiers with a deployment-specific
// salt, so identifiers are stable within one deployment but useless across
// deployments or against a rainbow table.
type Anonymizer struct {
	salt string
}

func New(salt string) *Anonymizer {
	return &Anonymizer{salt: salt}
}

// AnonymousID returns the stable pseudonym for a user identifier.
func (a *Anonymizer) AnonymousID(userID string) string {
	sum := sha256.Sum256([]byte(a.salt + ":" + userID))
	return hex.EncodeToString(sum[:16])
}

// Patterns for direct identifiers that show up in free-text symptom notes.
var phiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),      // email
	regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`), // phone
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                               // SSN
	regexp.MustCompile(`\b\d{1,5}\s+[A-Za-z]+\s+(?:St|Street|Ave|Avenue|Rd|Road|Dr|Drive|Ln|Lane|Blvd|Boulevard)\b`),
	regexp.MustCompile(`(?i)\b(?:dr|doctor|mr|mrs|ms)\.?\s+[A-Z][a-z]+\b`),
}

// ScrubNotes removes direct identifiers from free text.
func ScrubNotes(text string) string {
	for _, p := range phiPatterns {
		text = p.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}
