package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// Fingerprint derives a stable identity for a document's fiscal shape so
// user corrections survive re-uploads of the same document. Item order
// does not affect the result.
func Fingerprint(data domain.DocumentData) string {
	lines := make([]string, 0, len(data.Itens)+1)
	if data.Emitente != nil {
		lines = append(lines, "emit:"+data.Emitente.CNPJ)
	}
	for _, item := range data.Itens {
		lines = append(lines, strings.Join([]string{item.CFOP, item.NCM, item.CST}, "|"))
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
