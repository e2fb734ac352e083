package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash domains. The version suffix allows a future algorithm change without
// colliding with fingerprints already stored in snapshots.
const (
	DomainContent  = "docsync/content/v1"
	DomainMetadata = "docsync/metadata/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash fingerprints a normalized document body.
func ContentHash(body string) string {
	return hashWithDomain(DomainContent, []byte(body))
}

// MetadataHash fingerprints the title and metadata fields of a document.
func MetadataHash(title string, metadata map[string]string) (string, error) {
	fields := make(map[string]any, len(metadata))
	for k, v := range metadata {
		fields[k] = v
	}
	canonical, err := MarshalCanonical(map[string]any{
		"title":    title,
		"metadata": fields,
	})
	if err != nil {
		return "", fmt.Errorf("metadata hash: %w", err)
	}
	return hashWithDomain(DomainMetadata, canonical), nil
}

// MustMetadataHash is like MetadataHash but panics on error.
// String-only metadata always marshals, so this is safe for parsed documents.
func MustMetadataHash(title string, metadata map[string]string) string {
	h, err := MetadataHash(title, metadata)
	if err != nil {
		panic(err)
	}
	return h
}

// Fingerprint fills in the content and metadata hashes of d.
func Fingerprint(d *TrackedDocument) error {
	d.ContentHash = ContentHash(d.Body)
	h, err := MetadataHash(d.Title, d.Metadata)
	if err != nil {
		return err
	}
	d.MetadataHash = h
	return nil
}
