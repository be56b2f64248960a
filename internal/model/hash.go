package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainDocument is the domain prefix for document fingerprints. The version
// suffix allows a later change of algorithm.
const DomainDocument = "captable/document/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns the content address of doc. Two documents with the
// same holders and rounds have the same fingerprint regardless of key order,
// decimal formatting or Unicode normalization of names.
func Fingerprint(doc Document) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when the document is known to encode.
func MustFingerprint(doc Document) string {
	fp, err := Fingerprint(doc)
	if err != nil {
		panic(err)
	}
	return fp
}
