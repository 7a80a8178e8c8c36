// Package spreadsheet extracts fiscal line items from XLSX and CSV
// uploads. Column layout is probed by header name, so exports from
// different ERPs are accepted without a fixed template.
package spreadsheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

type columns struct {
	codigo     int
	descricao  int
	ncm        int
	cfop       int
	cst        int
	quantidade int
	valor      int
	icms       int
	pis        int
	cofins     int
}

type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

func (e *Extractor) Extract(_ context.Context, raw domain.RawInput) (domain.DocumentData, error) {
	var (
		rows [][]string
		err  error
	)
	switch {
	case raw.Format == domain.FormatCSV || strings.HasSuffix(strings.ToLower(raw.Name), ".csv"):
		rows, err = readCSV(raw.Content)
	default:
		rows, err = readXLSX(raw.Content)
	}
	if err != nil {
		return domain.DocumentData{}, domain.WrapError(domain.ErrExtraction, "read spreadsheet", err)
	}

	data, err := buildData(rows)
	if err != nil {
		return domain.DocumentData{}, domain.WrapError(domain.ErrExtraction, "map spreadsheet rows", err)
	}
	return data, nil
}

func readCSV(content []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.Comma = sniffDelimiter(content)

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func readXLSX(content []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	for _, sheet := range file.GetSheetList() {
		rows, err := file.GetRows(sheet)
		if err != nil {
			continue
		}
		if len(rows) > 1 {
			return rows, nil
		}
	}
	return nil, errors.New("no populated sheet")
}

func buildData(rows [][]string) (domain.DocumentData, error) {
	headerIdx, cols := locateHeader(rows)
	if headerIdx < 0 {
		return domain.DocumentData{}, errors.New("item header row not found")
	}

	data := domain.DocumentData{Impostos: map[string]float64{}}
	for _, row := range rows[headerIdx+1:] {
		if blankRow(row) {
			continue
		}
		item := domain.LineItem{
			Codigo:     cell(row, cols.codigo),
			Descricao:  cell(row, cols.descricao),
			NCM:        digitsOnly(cell(row, cols.ncm)),
			CFOP:       digitsOnly(cell(row, cols.cfop)),
			CST:        digitsOnly(cell(row, cols.cst)),
			Quantidade: parseNumber(cell(row, cols.quantidade)),
			Valor:      parseNumber(cell(row, cols.valor)),
		}
		if item.Descricao == "" && item.CFOP == "" && item.Valor == 0 {
			continue
		}
		data.Itens = append(data.Itens, item)

		data.Impostos["icms"] += parseNumber(cell(row, cols.icms))
		data.Impostos["pis"] += parseNumber(cell(row, cols.pis))
		data.Impostos["cofins"] += parseNumber(cell(row, cols.cofins))
	}

	if len(data.Itens) == 0 {
		return domain.DocumentData{}, errors.New("no item rows")
	}
	for key, value := range data.Impostos {
		if value == 0 {
			delete(data.Impostos, key)
		}
	}
	return data, nil
}

// locateHeader scans the first rows for the item table header, tolerating
// title rows above it.
func locateHeader(rows [][]string) (int, columns) {
	for i, row := range rows {
		if i > 5 {
			break
		}
		norm := make([]string, len(row))
		for j, value := range row {
			norm[j] = strings.ToLower(strings.TrimSpace(value))
		}
		cols := columns{
			codigo:     probe(norm, "codigo", "código", "cod", "sku"),
			descricao:  probe(norm, "descricao", "descrição", "produto", "item"),
			ncm:        probe(norm, "ncm"),
			cfop:       probe(norm, "cfop"),
			cst:        probe(norm, "cst", "csosn"),
			quantidade: probe(norm, "quantidade", "qtd", "qtde"),
			valor:      probe(norm, "valor", "vprod", "total"),
			icms:       probe(norm, "icms", "vicms"),
			pis:        probe(norm, "pis", "vpis"),
			cofins:     probe(norm, "cofins", "vcofins"),
		}
		if cols.cfop >= 0 && cols.valor >= 0 {
			return i, cols
		}
	}
	return -1, columns{}
}

func probe(headers []string, candidates ...string) int {
	for i, header := range headers {
		for _, candidate := range candidates {
			if strings.Contains(header, candidate) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
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

// parseNumber accepts both 1.234,56 and 1,234.56 conventions.
func parseNumber(value string) float64 {
	cleaned := strings.TrimSpace(strings.NewReplacer("R$", "", " ", "", " ", "").Replace(value))
	if cleaned == "" {
		return 0
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	if lastComma > lastDot {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else if lastComma >= 0 {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func sniffDelimiter(content []byte) rune {
	head := content
	if idx := bytes.IndexByte(head, '\n'); idx > 0 {
		head = head[:idx]
	}
	if bytes.Count(head, []byte(";")) > bytes.Count(head, []byte(",")) {
		return ';'
	}
	return ','
}
