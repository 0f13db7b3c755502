package mechanism

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DocumentVersion is written into every exported mechanism document.
const DocumentVersion = "1"

// Document is the JSON interchange form of a mechanism, written by the
// authoring studio and by storage backends. Node and link order is sorted by
// ID so repeated exports of the same mechanism are byte-identical.
type Document struct {
	Version    string       `json:"version"`
	Nodes      []*Node      `json:"nodes"`
	Links      []*Link      `json:"links"`
	TargetPath []Position2D `json:"targetPath,omitempty"`
}

// ToDocument converts the mechanism into its interchange form.
func (m *Mechanism) ToDocument() *Document {
	doc := &Document{
		Version:    DocumentVersion,
		Nodes:      make([]*Node, 0, len(m.Nodes)),
		Links:      make([]*Link, 0, len(m.Links)),
		TargetPath: m.TargetPath,
	}
	for _, n := range m.Nodes {
		doc.Nodes = append(doc.Nodes, n)
	}
	sort.Slice(doc.Nodes, func(i, j int) bool { return doc.Nodes[i].ID < doc.Nodes[j].ID })
	for _, l := range m.Links {
		doc.Links = append(doc.Links, l)
	}
	sort.Slice(doc.Links, func(i, j int) bool { return doc.Links[i].ID < doc.Links[j].ID })
	return doc
}

// FromDocument rebuilds a mechanism from its interchange form. Links are
// inserted in document order, which becomes the stable relaxation order.
func FromDocument(doc *Document) *Mechanism {
	m := New()
	for _, n := range doc.Nodes {
		m.AddNode(n)
	}
	for _, l := range doc.Links {
		m.AddLink(l)
	}
	m.TargetPath = doc.TargetPath
	return m
}

// Marshal encodes the mechanism as indented JSON.
func (m *Mechanism) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m.ToDocument(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mechanism document: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a mechanism document.
func Unmarshal(data []byte) (*Mechanism, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse mechanism document: %w", err)
	}
	return FromDocument(&doc), nil
}
