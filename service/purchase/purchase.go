// Package purchase turns a claimed payment into an owned artifact. A purchase
// is verified against the ledger, checked for replay, issued, and recorded
// atomically before the purchaser is notified.
package purchase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brojonat/craftmint/service/artifact"
	"github.com/brojonat/craftmint/service/db"
	"github.com/brojonat/craftmint/service/metrics"
	"github.com/brojonat/craftmint/service/verify"
)

// Verifier checks a claim against the ledger.
type Verifier interface {
	Verify(ctx context.Context, claim verify.TransferClaim, recipient string) verify.Result
}

// Issuer creates artifacts.
type Issuer interface {
	Issue(ctx context.Context, owner string) (*artifact.Artifact, error)
}

// Store is the ownership ledger.
type Store interface {
	PurchaseExists(ctx context.Context, transactionReference string) (bool, error)
	RecordPurchase(ctx context.Context, params db.RecordPurchaseParams) (*db.Purchase, *db.Artifact, error)
	ListArtifactsByOwner(ctx context.Context, ownerAccount string) ([]*db.Artifact, error)
}

// Notifier accepts notifications for asynchronous delivery. Notify must not
// block; it returns false when the notification was dropped.
type Notifier interface {
	Notify(n Notification) bool
}

// Notification describes a completed purchase.
type Notification struct {
	TransactionReference string
	Email                string // optional
	Artifact             artifact.Artifact
	PurchasedAt          time.Time
}

// Request is a purchase submission.
type Request struct {
	Claim       verify.TransferClaim
	NotifyEmail string
}

// Options configures a Service.
type Options struct {
	// Recipient is the treasury account payments must be sent to. Empty
	// means the identity is unavailable and every purchase fails with
	// KindServiceUnavailable.
	Recipient string
	// AcceptedMint, when set, is the only token mint accepted as payment.
	AcceptedMint  string
	VerifyTimeout time.Duration
	IssueTimeout  time.Duration
}

// Service sequences verification, issuance, persistence and notification.
type Service struct {
	verifier Verifier
	issuer   Issuer
	store    Store
	notifier Notifier
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService creates a Service. notifier and m may be nil.
func NewService(v Verifier, i Issuer, s Store, n Notifier, opts Options, m *metrics.Metrics, logger *slog.Logger) *Service {
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = 20 * time.Second
	}
	if opts.IssueTimeout <= 0 {
		opts.IssueTimeout = 60 * time.Second
	}
	return &Service{
		verifier: v,
		issuer:   i,
		store:    s,
		notifier: n,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
		metrics:  m,
	}
}

// Purchase redeems a claim for a new artifact. Every error it returns is a
// *Error.
func (s *Service) Purchase(ctx context.Context, req Request) (*artifact.Artifact, error) {
	start := time.Now()
	a, err := s.purchase(ctx, req)
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = string(KindOf(err))
		}
		s.metrics.RecordPurchase(outcome, time.Since(start).Seconds())
	}
	return a, err
}

func (s *Service) purchase(ctx context.Context, req Request) (*artifact.Artifact, error) {
	claim := req.Claim
	if err := validateClaim(claim); err != nil {
		return nil, err
	}

	logger := s.logger.With(
		"transaction_reference", claim.TransactionReference,
		"payer", claim.PayerAccount,
	)

	if s.opts.AcceptedMint != "" && claim.TokenMintAccount != s.opts.AcceptedMint {
		logger.InfoContext(ctx, "payment rejected: unsupported mint", "mint", claim.TokenMintAccount)
		return nil, newError(KindPaymentRejected, "token mint is not accepted", nil)
	}

	if s.opts.Recipient == "" {
		logger.ErrorContext(ctx, "purchase refused: recipient identity is not configured")
		return nil, newError(KindServiceUnavailable, "recipient wallet not properly configured", nil)
	}

	vctx, cancel := context.WithTimeout(ctx, s.opts.VerifyTimeout)
	res := s.verifier.Verify(vctx, claim, s.opts.Recipient)
	cancel()
	if !res.Valid {
		if res.Code == verify.CodeLedgerUnavailable {
			logger.WarnContext(ctx, "ledger unavailable during verification", "error", res.Err)
			return nil, newError(KindServiceUnavailable, "ledger unavailable, try again later", res.Err)
		}
		logger.InfoContext(ctx, "payment rejected", "code", res.Code, "reason", res.Reason)
		return nil, newError(KindPaymentRejected, res.Reason, res.Err)
	}

	exists, err := s.store.PurchaseExists(ctx, claim.TransactionReference)
	if err != nil {
		logger.ErrorContext(ctx, "could not check for prior redemption", "error", err)
		return nil, newError(KindPersistenceFailure, "could not record purchase", err)
	}
	if exists {
		logger.InfoContext(ctx, "transaction reference already redeemed")
		return nil, newError(KindDuplicateSubmission, "transaction already redeemed", db.ErrDuplicateTransaction)
	}

	ictx, cancel := context.WithTimeout(ctx, s.opts.IssueTimeout)
	issued, err := s.issuer.Issue(ictx, claim.PayerAccount)
	cancel()
	if err != nil {
		logger.ErrorContext(ctx, "artifact generation failed", "error", err)
		return nil, newError(KindArtifactGenerationFailed, "artifact generation failed", err)
	}

	_, _, err = s.store.RecordPurchase(ctx, db.RecordPurchaseParams{
		Artifact: db.CreateArtifactParams{
			ArtifactID:        issued.ID,
			ArtifactURI:       issued.URI,
			ImageURI:          issued.ImageURI,
			OwnerAccount:      issued.Owner,
			MetadataSignature: issued.MetadataSignature,
			IssuedAt:          issued.IssuedAt,
		},
		TransactionReference: claim.TransactionReference,
		PayerAccount:         claim.PayerAccount,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicateTransaction) {
			logger.InfoContext(ctx, "lost redemption race for transaction reference", "artifact_id", issued.ID)
			return nil, newError(KindDuplicateSubmission, "transaction already redeemed", err)
		}
		logger.ErrorContext(ctx, "failed to record purchase", "artifact_id", issued.ID, "error", err)
		return nil, newError(KindPersistenceFailure, "could not record purchase", err)
	}

	logger.InfoContext(ctx, "purchase recorded", "artifact_id", issued.ID)
	s.notify(ctx, logger, req, issued)
	return issued, nil
}

func (s *Service) notify(ctx context.Context, logger *slog.Logger, req Request, a *artifact.Artifact) {
	if s.notifier == nil {
		return
	}
	accepted := s.notifier.Notify(Notification{
		TransactionReference: req.Claim.TransactionReference,
		Email:                req.NotifyEmail,
		Artifact:             *a,
		PurchasedAt:          s.now().UTC(),
	})
	if !accepted {
		logger.WarnContext(ctx, "purchase notification dropped", "artifact_id", a.ID)
		if s.metrics != nil {
			s.metrics.RecordNotification("dispatch", "dropped")
		}
	}
}

// ListArtifacts returns the artifacts owned by owner, oldest first.
func (s *Service) ListArtifacts(ctx context.Context, owner string) ([]artifact.Artifact, error) {
	if owner == "" {
		return nil, newError(KindInvalidRequest, "owner account is required", nil)
	}

	rows, err := s.store.ListArtifactsByOwner(ctx, owner)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list artifacts", "owner", owner, "error", err)
		return nil, newError(KindPersistenceFailure, "could not load artifacts", err)
	}

	artifacts := make([]artifact.Artifact, 0, len(rows))
	for _, r := range rows {
		artifacts = append(artifacts, artifact.Artifact{
			ID:                r.ArtifactID,
			URI:               r.ArtifactURI,
			ImageURI:          r.ImageURI,
			Owner:             r.OwnerAccount,
			MetadataSignature: r.MetadataSignature,
			IssuedAt:          r.CreatedAt,
		})
	}
	return artifacts, nil
}

func validateClaim(c verify.TransferClaim) error {
	switch {
	case c.TransactionReference == "":
		return newError(KindInvalidRequest, "missing transaction signature", nil)
	case c.PayerAccount == "":
		return newError(KindInvalidRequest, "missing payer account", nil)
	case c.TokenMintAccount == "":
		return newError(KindInvalidRequest, "missing token mint address", nil)
	case !c.ExpectedAmount.IsPositive():
		return newError(KindInvalidRequest, "amount must be positive", nil)
	}
	return nil
}
