// Package storage persists rectified documents.
//
// Metadata lives in a SQLite database (folders and documents tables) opened
// through the pure Go modernc.org/sqlite driver, so the binary needs no cgo.
// Document bytes are written by a BlobStore under <root>/<owner>/<id><ext>.
package storage
