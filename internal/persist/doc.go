// Package persist stores project documents.
//
// A project is one canonical JSON document (see codec.EncodeDocument). The
// Router picks a backend from the form of the path:
//
//	s3://bucket/key         S3 (or any S3-compatible endpoint)
//	mem://name              process memory
//	file.db#project         SQLite; project defaults to "default"
//	file.sqlite#project     SQLite
//	anything else           local file, written atomically
//
// Loading a path that does not exist fails with FILE_NOT_FOUND. Every other
// backend failure is reported as OTHER.
package persist
