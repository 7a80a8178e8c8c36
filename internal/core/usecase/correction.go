package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
	"github.com/rmacedo/fiscal-audit-service/internal/core/ports"
)

// CorrectionUsecase records user category feedback. Appends only; the
// store keeps the full history and reads resolve to the latest entry.
type CorrectionUsecase struct {
	store  ports.CorrectionStore
	logger *slog.Logger
}

func NewCorrectionUsecase(store ports.CorrectionStore, logger *slog.Logger) *CorrectionUsecase {
	return &CorrectionUsecase{store: store, logger: logger}
}

func (u *CorrectionUsecase) Submit(ctx context.Context, fingerprint, tipo, ramo string) (domain.Correction, error) {
	if fingerprint == "" {
		return domain.Correction{}, domain.WrapError(domain.ErrInvalidInput, "submit correction", errors.New("empty fingerprint"))
	}
	if tipo == "" && ramo == "" {
		return domain.Correction{}, domain.WrapError(domain.ErrInvalidInput, "submit correction", errors.New("nothing to correct"))
	}

	correction := domain.Correction{
		Fingerprint: fingerprint,
		Tipo:        tipo,
		Ramo:        ramo,
		CreatedAt:   time.Now().UTC(),
	}
	seq, err := u.store.Append(ctx, correction)
	if err != nil {
		return domain.Correction{}, domain.WrapError(domain.ErrTemporary, "submit correction", err)
	}
	correction.Seq = seq

	u.logger.InfoContext(ctx, "correction recorded",
		slog.String("fingerprint", fingerprint),
		slog.Int64("seq", seq))
	return correction, nil
}
