// Package docstore reads and writes whole collection documents held in a
// document store, caching reads for a short window.
package docstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// AnyRevision makes a Put unconditional.
const AnyRevision = "*"

// AbsentRevision is the revision of a document that does not exist yet.
const AbsentRevision = "0"

var (
	// ErrConflict means the document changed between read and write.
	ErrConflict = errors.New("docstore: revision conflict")
	// ErrNoChange lets an update function skip the write.
	ErrNoChange = errors.New("docstore: no change")
	// ErrInvalidDocument wraps schema violations found while decoding or encoding.
	ErrInvalidDocument = errors.New("docstore: invalid document")
)

// Document is one collection document and the revision it was read at.
type Document struct {
	Record   json.RawMessage
	Revision string
}

// Backend is a document store holding one JSON document per collection id.
type Backend interface {
	Fetch(ctx context.Context, collectionID string) (Document, error)
	// Put replaces the document when its current revision equals ifMatch
	// (AnyRevision skips the check) and returns the stored document.
	Put(ctx context.Context, collectionID string, record json.RawMessage, ifMatch string) (Document, error)
}

// APIError is a non-success response from a remote store.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docstore: %s status %d: %s", e.Op, e.Status, e.Body)
}

// contentRevision derives a revision from the record bytes for stores
// that do not version documents themselves.
func contentRevision(record json.RawMessage) string {
	var compact bytes.Buffer
	data := []byte(record)
	if err := json.Compact(&compact, record); err == nil {
		data = compact.Bytes()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
