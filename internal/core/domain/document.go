package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusExtracted  DocumentStatus = "extracted"
	StatusAudited    DocumentStatus = "audited"
	StatusClassified DocumentStatus = "classified"
	StatusComputed   DocumentStatus = "computed"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

type SourceFormat string

const (
	FormatNFeXML  SourceFormat = "nfe_xml"
	FormatCSV     SourceFormat = "csv"
	FormatXLSX    SourceFormat = "xlsx"
	FormatPDF     SourceFormat = "pdf"
	FormatImage   SourceFormat = "image"
	FormatUnknown SourceFormat = "unknown"
)

// Party identifies one side of a fiscal document (emitente/destinatario).
type Party struct {
	Nome      string `json:"nome,omitempty"`
	CNPJ      string `json:"cnpj,omitempty"`
	IE        string `json:"inscricaoEstadual,omitempty"`
	Municipio string `json:"municipio,omitempty"`
	UF        string `json:"uf,omitempty"`
}

// LineItem is one traded item on a fiscal document. Valor is the item
// total in BRL as extracted from the source.
type LineItem struct {
	Codigo     string  `json:"codigo,omitempty"`
	Descricao  string  `json:"descricao,omitempty"`
	NCM        string  `json:"ncm,omitempty"`
	CFOP       string  `json:"cfop,omitempty"`
	CST        string  `json:"cst,omitempty"`
	Quantidade float64 `json:"quantidade,omitempty"`
	Valor      float64 `json:"valor"`
}

// DocumentData holds the normalized fields produced by extraction.
type DocumentData struct {
	Emitente     *Party             `json:"emitente,omitempty"`
	Destinatario *Party             `json:"destinatario,omitempty"`
	Itens        []LineItem         `json:"itens"`
	Impostos     map[string]float64 `json:"impostos,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
	Text         string             `json:"text,omitempty"`
}

// TotalValue is the sum of item amounts.
func (d DocumentData) TotalValue() float64 {
	var total float64
	for _, item := range d.Itens {
		total += item.Valor
	}
	return total
}

// Document is the pipeline's unit of work. Status advances monotonically
// and is mutated only by the coordinator.
type Document struct {
	ID            string         `json:"id"`
	BatchID       string         `json:"batch_id,omitempty"`
	Name          string         `json:"name"`
	Format        SourceFormat   `json:"format"`
	Regime        string         `json:"regime,omitempty"`
	Data          DocumentData   `json:"data"`
	Status        DocumentStatus `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// RawInput is an unprocessed source document handed to the pipeline.
type RawInput struct {
	ID      string
	Name    string
	Format  SourceFormat
	Regime  string
	Content []byte
}
