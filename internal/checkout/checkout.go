package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/fjod/cheeseshop/internal/session"
	"go.uber.org/zap"
)

var ErrSubmissionFailed = errors.New("purchase submission failed")

// Submitter hands a purchase to durable storage.
type Submitter interface {
	SubmitPurchase(ctx context.Context, p domain.Purchase) error
}

type Checkout struct {
	assembler *Assembler
	submitter Submitter
	now       func() time.Time
	logger    *zap.Logger
}

func NewCheckout(assembler *Assembler, submitter Submitter, logger *zap.Logger) *Checkout {
	return &Checkout{
		assembler: assembler,
		submitter: submitter,
		now:       time.Now,
		logger:    logger,
	}
}

// Run commits the cart of s and submits the resulting purchase. The cart is
// frozen while the submission is in flight and cleared only after it
// succeeds; on failure, including a panicking submitter, it is left
// exactly as it was.
func (c *Checkout) Run(ctx context.Context, s *session.Session) (*domain.Purchase, error) {
	items, err := s.BeginCheckout()
	if err != nil {
		return nil, err
	}
	submitted := false
	defer func() { s.FinishCheckout(submitted) }()

	purchase := c.assembler.Commit(items, s.ID(), c.now())

	if errSubmit := c.submitter.SubmitPurchase(ctx, purchase); errSubmit != nil {
		c.logger.Warn("purchase submission failed, cart kept",
			zap.String("session_id", s.ID()),
			zap.String("purchase_id", purchase.ID),
			zap.Error(errSubmit))
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, errSubmit)
	}

	submitted = true
	c.logger.Info("purchase submitted",
		zap.String("session_id", s.ID()),
		zap.String("purchase_id", purchase.ID),
		zap.Int("total_items", purchase.TotalItems),
		zap.String("total_price", purchase.TotalPrice.StringFixed(2)))
	return &purchase, nil
}
