// Package export writes finished artifacts to an object store.
package export

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"resume-pipeline/internal/shared/storage/object"
	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/shared/util"
)

// Document is one artifact ready for export.
type Document struct {
	CandidateID   string
	ApplicationID string
	Type          string
	Language      string
	Status        string
	Content       string
}

// Sink emits documents and returns where they landed.
type Sink interface {
	Emit(ctx context.Context, doc Document) (string, error)
}

// ObjectStoreSink writes markdown documents under <candidate hash>/<application>/<type>.<language>.md.
type ObjectStoreSink struct {
	Store object.ObjectStore
}

// NewObjectStoreSink constructs an ObjectStoreSink.
func NewObjectStoreSink(store object.ObjectStore) *ObjectStoreSink {
	return &ObjectStoreSink{Store: store}
}

// Key returns the storage key for doc.
func Key(doc Document) (string, error) {
	if strings.TrimSpace(doc.CandidateID) == "" || strings.TrimSpace(doc.ApplicationID) == "" {
		return "", errors.New("export: candidate and application ids are required")
	}
	name, err := util.KeySegment(doc.Type + "." + doc.Language + ".md")
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	app, err := util.KeySegment(doc.ApplicationID)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return path.Join(util.HashString(doc.CandidateID)[:16], app, name), nil
}

// Emit implements Sink.
func (s *ObjectStoreSink) Emit(ctx context.Context, doc Document) (string, error) {
	key, err := Key(doc)
	if err != nil {
		return "", err
	}
	body := doc.Content
	if doc.Status != "" && doc.Status != "ACCEPTED" {
		body = fmt.Sprintf("<!-- status: %s -->\n%s", doc.Status, body)
	}
	n, err := s.Store.Put(ctx, key, "text/markdown; charset=utf-8", strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("export %s: %w", key, err)
	}
	telemetry.Info("export.emitted", map[string]any{
		"application_id": doc.ApplicationID,
		"type":           doc.Type,
		"language":       doc.Language,
		"key":            key,
		"bytes":          n,
	})
	return key, nil
}

// Discard drops documents; used when no object store is configured.
type Discard struct{}

// Emit implements Sink.
func (Discard) Emit(ctx context.Context, doc Document) (string, error) { return "", nil }
