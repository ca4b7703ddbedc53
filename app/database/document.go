package database

import (
	"encoding/json"
	"fmt"

	"DistroApp/app/models"
)

// EncodeDocuments serializes entities into documents keyed by their ids
func EncodeDocuments[T models.Entity](items []T) ([]Document, error) {
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", item.GetID(), err)
		}
		docs = append(docs, Document{ID: item.GetID(), Data: data})
	}
	return docs, nil
}

// RawFromDocuments returns the payloads of docs in order
func RawFromDocuments(docs []Document) []json.RawMessage {
	items := make([]json.RawMessage, len(docs))
	for i, doc := range docs {
		items[i] = doc.Data
	}
	return items
}
