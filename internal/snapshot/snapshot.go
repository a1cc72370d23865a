// Package snapshot is the persisted wire format of a story graph.
// Documents are checked against an embedded JSON schema before they are
// decoded and validated against the graph invariants.
package snapshot

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xchatlife/novelgraph/internal/graph"
)

// FormatVersion is the only document version this build reads and writes.
const FormatVersion = 1

//go:embed schema.json
var schemaJSON []byte

var schema *gojsonschema.Schema

func init() {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("snapshot: invalid embedded schema: %v", err))
	}
	schema = s
}

// ErrNotFound is returned by a Repository when no snapshot is stored for a
// novel.
var ErrNotFound = errors.New("snapshot: novel not found")

// Document is a persisted graph.
type Document struct {
	Version int          `json:"version"`
	NovelID string       `json:"novelId,omitempty"`
	Title   string       `json:"title,omitempty"`
	SavedAt time.Time    `json:"savedAt"`
	Nodes   []graph.Node `json:"nodes"`
	Edges   []graph.Edge `json:"edges"`
}

// Snapshot returns the graph part of the document.
func (d Document) Snapshot() graph.Snapshot {
	return graph.Snapshot{Nodes: d.Nodes, Edges: d.Edges}
}

// Record is a stored document with its storage metadata.
type Record struct {
	NovelID   string
	Title     string
	Data      []byte
	Revision  int64
	UpdatedAt time.Time
}

// Summary describes a stored novel without its document.
type Summary struct {
	NovelID   string    `json:"novel_id"`
	Title     string    `json:"title,omitempty"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository stores encoded documents per novel. Writes are last-write-wins.
type Repository interface {
	Save(ctx context.Context, novelID, title string, data []byte) (revision int64, err error)
	Load(ctx context.Context, novelID string) (Record, error)
	List(ctx context.Context) ([]Summary, error)
}

// Encode writes the store as a document.
func Encode(novelID, title string, snap graph.Snapshot, now time.Time) ([]byte, error) {
	doc := Document{
		Version: FormatVersion,
		NovelID: novelID,
		Title:   title,
		SavedAt: now.UTC(),
		Nodes:   snap.Nodes,
		Edges:   snap.Edges,
	}
	if doc.Nodes == nil {
		doc.Nodes = []graph.Node{}
	}
	if doc.Edges == nil {
		doc.Edges = []graph.Edge{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode checks data against the schema, decodes it and validates the
// graph invariants. Every failure wraps graph.ErrInvalidSnapshot.
func Decode(data []byte) (Document, error) {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", graph.ErrInvalidSnapshot, err)
	}
	if !res.Valid() {
		return Document{}, fmt.Errorf("%w: %s", graph.ErrInvalidSnapshot, describe(res.Errors()))
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", graph.ErrInvalidSnapshot, err)
	}
	if err := graph.Validate(doc.Snapshot()); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// describe joins the first few schema errors.
func describe(errs []gojsonschema.ResultError) string {
	const limit = 3
	parts := make([]string, 0, limit)
	for i, e := range errs {
		if i == limit {
			parts = append(parts, fmt.Sprintf("and %d more", len(errs)-limit))
			break
		}
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}
