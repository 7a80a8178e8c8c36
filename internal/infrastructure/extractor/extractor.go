// Package extractor routes raw inputs to the format-specific field
// extractors and normalizes their output for the pipeline.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
	"github.com/rmacedo/fiscal-audit-service/internal/core/ports"
)

// Dispatcher picks the extractor for an input's detected format.
type Dispatcher struct {
	byFormat map[domain.SourceFormat]ports.FieldExtractor
}

func NewDispatcher(byFormat map[domain.SourceFormat]ports.FieldExtractor) *Dispatcher {
	return &Dispatcher{byFormat: byFormat}
}

func (d *Dispatcher) Extract(ctx context.Context, raw domain.RawInput) (domain.DocumentData, error) {
	format := raw.Format
	if format == "" || format == domain.FormatUnknown {
		format = DetectFormat(raw.Name, raw.Content)
	}

	impl, ok := d.byFormat[format]
	if !ok {
		return domain.DocumentData{}, domain.WrapError(domain.ErrExtraction, "dispatch",
			errors.New("unsupported format "+string(format)))
	}

	data, err := impl.Extract(ctx, raw)
	if err != nil {
		return domain.DocumentData{}, err
	}
	if data.Metadata == nil {
		data.Metadata = map[string]string{}
	}
	data.Metadata["source_format"] = string(format)
	return data, nil
}

// DetectFormat sniffs content first and falls back to the file extension.
func DetectFormat(name string, content []byte) domain.SourceFormat {
	trimmed := bytes.TrimSpace(content)
	switch {
	case bytes.HasPrefix(trimmed, []byte("<?xml")), bytes.HasPrefix(trimmed, []byte("<nfeProc")), bytes.HasPrefix(trimmed, []byte("<NFe")):
		return domain.FormatNFeXML
	case bytes.HasPrefix(trimmed, []byte("%PDF")):
		return domain.FormatPDF
	case bytes.HasPrefix(trimmed, []byte("PK\x03\x04")):
		// zip container: xlsx is the only zip format accepted here
		return domain.FormatXLSX
	case bytes.HasPrefix(trimmed, []byte{0xFF, 0xD8, 0xFF}), bytes.HasPrefix(trimmed, []byte("\x89PNG")):
		return domain.FormatImage
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xml":
		return domain.FormatNFeXML
	case ".csv":
		return domain.FormatCSV
	case ".xlsx":
		return domain.FormatXLSX
	case ".pdf":
		return domain.FormatPDF
	case ".png", ".jpg", ".jpeg":
		return domain.FormatImage
	}
	return domain.FormatUnknown
}
