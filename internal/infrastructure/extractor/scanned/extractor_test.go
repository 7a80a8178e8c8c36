package scanned

import (
	"context"
	"errors"
	"testing"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

const recognizedText = `NOTA FISCAL ELETRONICA
CNPJ: 12.345.678/0001-99
5102 85044010 00 Notebook profissional 7.000,00
5102 85287200 Monitor LED 899,90
ICMS: 1.350,00
PIS 123,75
VALOR TOTAL: 7.899,90`

type stubOCR struct {
	text string
	err  error
}

func (s stubOCR) Recognize(context.Context, string, []byte) (string, error) {
	return s.text, s.err
}

func TestParseTextExtractsItemTable(t *testing.T) {
	data := ParseText(recognizedText)

	if len(data.Itens) != 2 {
		t.Fatalf("itens = %+v", data.Itens)
	}
	first := data.Itens[0]
	if first.CFOP != "5102" || first.NCM != "85044010" || first.CST != "00" || first.Valor != 7000 {
		t.Fatalf("first item = %+v", first)
	}
	if data.Itens[1].CST != "" {
		t.Fatalf("optional CST should stay empty: %+v", data.Itens[1])
	}
	if data.Impostos["icms"] != 1350 || data.Impostos["pis"] != 123.75 {
		t.Fatalf("impostos = %+v", data.Impostos)
	}
	if data.Emitente == nil || data.Emitente.CNPJ != "12345678000199" {
		t.Fatalf("emitente = %+v", data.Emitente)
	}
}

func TestParseTextFallsBackToLabeledFields(t *testing.T) {
	text := "RECIBO\nCFOP: 6102\nNCM: 02013000\nVALOR TOTAL R$ 150,00"
	data := ParseText(text)

	if len(data.Itens) != 1 {
		t.Fatalf("itens = %+v", data.Itens)
	}
	if data.Itens[0].CFOP != "6102" || data.Itens[0].Valor != 150 {
		t.Fatalf("item = %+v", data.Itens[0])
	}
}

func TestExtractUsesOCRForImages(t *testing.T) {
	extractor := NewExtractor(stubOCR{text: recognizedText})

	data, err := extractor.Extract(context.Background(), domain.RawInput{
		Name:    "nota.png",
		Format:  domain.FormatImage,
		Content: []byte{0x89, 'P', 'N', 'G'},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(data.Itens) != 2 {
		t.Fatalf("itens = %+v", data.Itens)
	}
}

func TestExtractWrapsOCRFailure(t *testing.T) {
	extractor := NewExtractor(stubOCR{err: errors.New("service down")})

	_, err := extractor.Extract(context.Background(), domain.RawInput{
		Name:    "nota.png",
		Format:  domain.FormatImage,
		Content: []byte{0x89, 'P', 'N', 'G'},
	})
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtractWithoutBackendOrTextLayerFails(t *testing.T) {
	extractor := NewExtractor(nil)

	_, err := extractor.Extract(context.Background(), domain.RawInput{
		Name:    "nota.png",
		Format:  domain.FormatImage,
		Content: []byte{0x89, 'P', 'N', 'G'},
	})
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}
