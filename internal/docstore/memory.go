package docstore

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
)

type memoryDocument struct {
	record  []byte
	version int64
}

// Memory keeps documents in process. It backs tests and STORE_DRIVER=memory.
type Memory struct {
	mu   sync.Mutex
	docs map[string]memoryDocument
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]memoryDocument)}
}

// Seed stores document under collectionID, replacing what was there.
func (m *Memory) Seed(collectionID string, document any) error {
	record, err := json.Marshal(document)
	if err != nil {
		return err
	}
	_, err = m.Put(context.Background(), collectionID, record, AnyRevision)
	return err
}

func (m *Memory) Fetch(_ context.Context, collectionID string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collectionID]
	if !ok {
		return Document{Revision: AbsentRevision}, nil
	}
	return Document{
		Record:   append(json.RawMessage(nil), doc.record...),
		Revision: strconv.FormatInt(doc.version, 10),
	}, nil
}

func (m *Memory) Put(_ context.Context, collectionID string, record json.RawMessage, ifMatch string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.docs[collectionID]
	if ifMatch != AnyRevision && ifMatch != strconv.FormatInt(doc.version, 10) {
		return Document{}, ErrConflict
	}
	doc.record = append([]byte(nil), record...)
	doc.version++
	m.docs[collectionID] = doc
	return Document{
		Record:   append(json.RawMessage(nil), record...),
		Revision: strconv.FormatInt(doc.version, 10),
	}, nil
}
