// Package scanned extracts fields from PDFs and images. PDFs with a text
// layer are read directly; everything else goes through the OCR service.
package scanned

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// Recognizer is the OCR backend consulted when no text layer exists.
type Recognizer interface {
	Recognize(ctx context.Context, name string, content []byte) (string, error)
}

type Extractor struct {
	ocr Recognizer
}

func NewExtractor(ocr Recognizer) *Extractor {
	return &Extractor{ocr: ocr}
}

func (e *Extractor) Extract(ctx context.Context, raw domain.RawInput) (domain.DocumentData, error) {
	text := ""
	if raw.Format == domain.FormatPDF {
		text = pdfTextLayer(raw.Content)
	}

	if strings.TrimSpace(text) == "" {
		if e.ocr == nil {
			return domain.DocumentData{}, domain.WrapError(domain.ErrExtraction, "scanned input",
				errors.New("no text layer and no OCR backend configured"))
		}
		recognized, err := e.ocr.Recognize(ctx, raw.Name, raw.Content)
		if err != nil {
			return domain.DocumentData{}, domain.WrapError(domain.ErrExtraction, "ocr recognize", err)
		}
		text = recognized
	}

	data := ParseText(text)
	if len(data.Itens) == 0 {
		return domain.DocumentData{}, domain.WrapError(domain.ErrExtraction, "parse recognized text",
			errors.New("no fiscal fields recognized"))
	}
	return data, nil
}

// pdfTextLayer returns the embedded text of all pages, or empty when the
// file is image-only or unreadable.
func pdfTextLayer(content []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return ""
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

var (
	itemLinePattern = regexp.MustCompile(`(?i)(?:^|\s)(\d{4})\s+(\d{8})\s+(?:(\d{2,3})\s+)?.*?([\d.]+,\d{2}|\d+\.\d{2})\s*$`)
	cfopPattern     = regexp.MustCompile(`(?i)CFOP[:\s]+(\d{4})`)
	ncmPattern      = regexp.MustCompile(`(?i)NCM[:\s]+(\d{8})`)
	totalPattern    = regexp.MustCompile(`(?i)(?:VALOR\s+)?TOTAL[^\d]{0,10}([\d.]+,\d{2}|\d+\.\d{2})`)
	taxPatterns     = map[string]*regexp.Regexp{
		"icms":   regexp.MustCompile(`(?i)\bICMS\b[^\d]{0,10}([\d.]+,\d{2}|\d+\.\d{2})`),
		"pis":    regexp.MustCompile(`(?i)\bPIS\b[^\d]{0,10}([\d.]+,\d{2}|\d+\.\d{2})`),
		"cofins": regexp.MustCompile(`(?i)\bCOFINS\b[^\d]{0,10}([\d.]+,\d{2}|\d+\.\d{2})`),
		"iss":    regexp.MustCompile(`(?i)\bISS\b[^\d]{0,10}([\d.]+,\d{2}|\d+\.\d{2})`),
	}
	cnpjPattern = regexp.MustCompile(`(?i)CNPJ[:\s]+([\d./-]{14,18})`)
)

// ParseText maps recognized text to fiscal fields. Item table lines carry
// CFOP, NCM, optional CST and a trailing amount; when none parse, a single
// synthetic item is built from the labeled CFOP/NCM/total lines.
func ParseText(text string) domain.DocumentData {
	data := domain.DocumentData{
		Text:     text,
		Impostos: map[string]float64{},
		Metadata: map[string]string{},
	}

	for _, line := range strings.Split(text, "\n") {
		match := itemLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		data.Itens = append(data.Itens, domain.LineItem{
			CFOP:      match[1],
			NCM:       match[2],
			CST:       match[3],
			Valor:     parseAmount(match[4]),
			Descricao: strings.TrimSpace(line),
		})
	}

	if len(data.Itens) == 0 {
		cfop := firstGroup(cfopPattern, text)
		ncm := firstGroup(ncmPattern, text)
		total := parseAmount(firstGroup(totalPattern, text))
		if cfop != "" && total > 0 {
			data.Itens = append(data.Itens, domain.LineItem{
				CFOP:      cfop,
				NCM:       ncm,
				Valor:     total,
				Descricao: "Documento digitalizado",
			})
		}
	}

	for tax, pattern := range taxPatterns {
		if value := parseAmount(firstGroup(pattern, text)); value > 0 {
			data.Impostos[tax] = value
		}
	}
	if cnpj := firstGroup(cnpjPattern, text); cnpj != "" {
		data.Emitente = &domain.Party{CNPJ: digitsOnly(cnpj)}
	}
	return data
}

func firstGroup(pattern *regexp.Regexp, text string) string {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return match[1]
}

func parseAmount(value string) float64 {
	if value == "" {
		return 0
	}
	if strings.Contains(value, ",") {
		value = strings.ReplaceAll(value, ".", "")
		value = strings.ReplaceAll(value, ",", ".")
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
