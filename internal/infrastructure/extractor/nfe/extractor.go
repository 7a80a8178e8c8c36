// Package nfe parses NF-e XML documents (nfeProc or bare NFe roots) into
// normalized fiscal fields.
package nfe

import (
	"context"
	"encoding/xml"
	"errors"
	"strconv"
	"strings"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

type nfeProc struct {
	XMLName xml.Name `xml:"nfeProc"`
	NFe     nfeNode  `xml:"NFe"`
}

type nfeNode struct {
	XMLName xml.Name `xml:"NFe"`
	InfNFe  infNFe   `xml:"infNFe"`
}

type infNFe struct {
	ID    string   `xml:"Id,attr"`
	Ide   ide      `xml:"ide"`
	Emit  party    `xml:"emit"`
	Dest  party    `xml:"dest"`
	Det   []detail `xml:"det"`
	Total total    `xml:"total"`
}

type ide struct {
	NNF   string `xml:"nNF"`
	Serie string `xml:"serie"`
	DhEmi string `xml:"dhEmi"`
	NatOp string `xml:"natOp"`
}

type party struct {
	CNPJ     string  `xml:"CNPJ"`
	Nome     string  `xml:"xNome"`
	IE       string  `xml:"IE"`
	Endereco address `xml:"enderEmit"`
	EndDest  address `xml:"enderDest"`
}

type address struct {
	Municipio string `xml:"xMun"`
	UF        string `xml:"UF"`
}

type detail struct {
	NItem string  `xml:"nItem,attr"`
	Prod  product `xml:"prod"`
	Imp   imposto `xml:"imposto"`
}

type product struct {
	Codigo    string `xml:"cProd"`
	Descricao string `xml:"xProd"`
	NCM       string `xml:"NCM"`
	CFOP      string `xml:"CFOP"`
	Qtde      string `xml:"qCom"`
	Valor     string `xml:"vProd"`
}

type imposto struct {
	ICMS icmsGroup `xml:"ICMS"`
}

// icmsGroup keeps the raw ICMS variant block; the CST is pulled out of it
// textually since the schema has a dozen ICMS00..ICMSSN900 shapes.
type icmsGroup struct {
	Raw string `xml:",innerxml"`
}

type total struct {
	ICMSTot icmsTot `xml:"ICMSTot"`
}

type icmsTot struct {
	VProd   string `xml:"vProd"`
	VNF     string `xml:"vNF"`
	VICMS   string `xml:"vICMS"`
	VPIS    string `xml:"vPIS"`
	VCOFINS string `xml:"vCOFINS"`
	VST     string `xml:"vST"`
}

type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

func (e *Extractor) Extract(_ context.Context, raw domain.RawInput) (domain.DocumentData, error) {
	inf, err := decode(raw.Content)
	if err != nil {
		return domain.DocumentData{}, domain.WrapError(domain.ErrExtraction, "parse nfe xml", err)
	}
	if len(inf.Det) == 0 {
		return domain.DocumentData{}, domain.WrapError(domain.ErrExtraction, "parse nfe xml", errors.New("no det items"))
	}

	data := domain.DocumentData{
		Emitente: &domain.Party{
			Nome:      inf.Emit.Nome,
			CNPJ:      inf.Emit.CNPJ,
			IE:        inf.Emit.IE,
			Municipio: inf.Emit.Endereco.Municipio,
			UF:        inf.Emit.Endereco.UF,
		},
		Destinatario: &domain.Party{
			Nome:      inf.Dest.Nome,
			CNPJ:      inf.Dest.CNPJ,
			IE:        inf.Dest.IE,
			Municipio: inf.Dest.EndDest.Municipio,
			UF:        inf.Dest.EndDest.UF,
		},
		Itens: make([]domain.LineItem, 0, len(inf.Det)),
		Metadata: map[string]string{
			"chave":    strings.TrimPrefix(inf.ID, "NFe"),
			"numero":   inf.Ide.NNF,
			"serie":    inf.Ide.Serie,
			"emissao":  inf.Ide.DhEmi,
			"natureza": inf.Ide.NatOp,
		},
	}

	for _, det := range inf.Det {
		data.Itens = append(data.Itens, domain.LineItem{
			Codigo:     det.Prod.Codigo,
			Descricao:  det.Prod.Descricao,
			NCM:        det.Prod.NCM,
			CFOP:       det.Prod.CFOP,
			CST:        cstFrom(det.Imp.ICMS.Raw),
			Quantidade: parseAmount(det.Prod.Qtde),
			Valor:      parseAmount(det.Prod.Valor),
		})
	}

	data.Impostos = map[string]float64{}
	for key, value := range map[string]string{
		"icms":   inf.Total.ICMSTot.VICMS,
		"pis":    inf.Total.ICMSTot.VPIS,
		"cofins": inf.Total.ICMSTot.VCOFINS,
		"st":     inf.Total.ICMSTot.VST,
	} {
		if value != "" {
			data.Impostos[key] = parseAmount(value)
		}
	}
	if inf.Total.ICMSTot.VNF != "" {
		data.Metadata["vNF"] = inf.Total.ICMSTot.VNF
	}
	return data, nil
}

// decode accepts both the signed envelope (nfeProc) and a bare NFe root.
func decode(content []byte) (infNFe, error) {
	var proc nfeProc
	if err := xml.Unmarshal(content, &proc); err == nil && len(proc.NFe.InfNFe.Det) > 0 {
		return proc.NFe.InfNFe, nil
	}

	var node nfeNode
	if err := xml.Unmarshal(content, &node); err != nil {
		return infNFe{}, err
	}
	return node.InfNFe, nil
}

// cstFrom pulls the CST (or CSOSN under Simples) out of the ICMS variant
// block without modeling all ICMS00..ICMSSN900 shapes.
func cstFrom(inner string) string {
	for _, tag := range []string{"CST", "CSOSN"} {
		openTag, closeTag := "<"+tag+">", "</"+tag+">"
		start := strings.Index(inner, openTag)
		if start < 0 {
			continue
		}
		rest := inner[start+len(openTag):]
		end := strings.Index(rest, closeTag)
		if end < 0 {
			continue
		}
		return strings.TrimSpace(rest[:end])
	}
	return ""
}

func parseAmount(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return parsed
}
