// Package source reads the external proposal corpus.
//
// A Repository is the narrow capability the rest of docsync depends on: list
// every document, read one document. DirRepository reads a checkout on disk,
// GitRepository reads a git revision without touching the working tree, and
// MemoryRepository serves tests.
//
// The Fetcher turns a Repository into the per-cycle view: an eager listing
// (the key set used for removal detection) and a lazy, restartable sequence
// of parsed documents read in bounded concurrent windows. A document that
// cannot be read or parsed yields a Result carrying the error; the sequence
// itself keeps going.
package source
