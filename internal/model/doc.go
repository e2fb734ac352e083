// Package model defines the document, snapshot, changelog and cycle types
// shared by every docsync component, plus the hashing rules that give a
// document its content and metadata fingerprints.
//
// # CRITICAL PATTERNS
//
// Bodies are normalized once, at parse time (NormalizeBody). The stored body
// is exactly the hashed body, so a hash comparison and a line diff always
// agree about whether content changed.
//
// Metadata hashes are computed over canonical JSON (MarshalCanonical):
// sorted keys, NFC strings, no insignificant whitespace. Map iteration order
// never leaks into a fingerprint.
package model
