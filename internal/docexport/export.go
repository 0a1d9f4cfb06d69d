// Package docexport converts subtitle artifacts into word-processor
// documents.
package docexport

import (
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"clipscribe/internal/domain"
	"clipscribe/internal/subtitle"
)

// Exporter writes .docx documents from subtitle-format artifacts.
type Exporter struct {
	readFile func(string) ([]byte, error)
	create   func(string) (*os.File, error)
}

// NewExporter constructs an exporter with OS dependencies.
func NewExporter() *Exporter {
	return &Exporter{
		readFile: os.ReadFile,
		create:   os.Create,
	}
}

// NewExporterForTests constructs an exporter with injectable dependencies.
func NewExporterForTests(
	readFile func(string) ([]byte, error),
	create func(string) (*os.File, error),
) *Exporter {
	return &Exporter{readFile: readFile, create: create}
}

// Export reads the subtitle file at vttPath, strips timestamps and container
// markup, and serializes the remaining caption text to a document at docPath.
// Caption ordering is preserved, one paragraph per caption line.
func (e *Exporter) Export(vttPath, docPath, title string) error {
	raw, err := e.readFile(vttPath)
	if err != nil {
		return domain.E(domain.KindDocumentExport, fmt.Sprintf("read subtitle file %s", vttPath), err)
	}

	text := subtitle.ExtractText(string(raw))
	if strings.TrimSpace(text) == "" {
		return domain.E(domain.KindDocumentExport, "subtitle file contains no caption text", nil)
	}

	doc := docx.New().WithDefaultTheme()
	if strings.TrimSpace(title) != "" {
		doc.AddParagraph().AddText(title).Size("32").Bold()
		doc.AddParagraph()
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		doc.AddParagraph().AddText(line)
	}

	f, err := e.create(docPath)
	if err != nil {
		return domain.E(domain.KindDocumentExport, fmt.Sprintf("create document %s", docPath), err)
	}
	defer f.Close()

	if _, err := doc.WriteTo(f); err != nil {
		return domain.E(domain.KindDocumentExport, "serialize document", err)
	}
	return nil
}
