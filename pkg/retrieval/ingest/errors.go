package ingest

import "errors"

// errMismatchedEmbeddings indicates an Embedder returned a different number
// of vectors than texts it was given.
var errMismatchedEmbeddings = errors.New("ingest: embedder returned a mismatched number of vectors")
