package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/xchatlife/novelgraph/internal/graph"
	"github.com/xchatlife/novelgraph/internal/snapshot"
)

var (
	Title  = color.New(color.FgHiCyan, color.Bold)
	Subtle = color.New(color.FgHiBlack)
	Warn   = color.New(color.FgYellow)
	Good   = color.New(color.FgGreen)
	Bad    = color.New(color.FgRed)
)

func statusIcon(ok bool) string {
	if ok {
		return Good.Sprint("✓")
	}
	return Bad.Sprint("✗")
}

// readDocument loads and checks a document file. "-" reads stdin.
func readDocument(path string) (snapshot.Document, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return snapshot.Document{}, err
	}
	doc, err := snapshot.Decode(b)
	if err != nil {
		return snapshot.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func describeNode(s *graph.Store, id string) string {
	n, ok := s.Node(id)
	if !ok {
		return id
	}
	return fmt.Sprintf("%s %q", n.Variant, n.Label)
}
