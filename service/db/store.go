package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/craftmint/service/db/dbgen"
	"github.com/brojonat/craftmint/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTransaction is returned when a purchase for the same
	// transaction reference has already been recorded.
	ErrDuplicateTransaction = errors.New("transaction reference already redeemed")

	// ErrDuplicateArtifact is returned when an artifact ID collides.
	ErrDuplicateArtifact = errors.New("artifact already exists")
)

const purchasesTransactionReferenceKey = "purchases_transaction_reference_key"

// Store provides database operations for the service.
// It wraps the generated sqlc Queries with domain types and transactions.
type Store struct {
	pool    *pgxpool.Pool
	q       *dbgen.Queries
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		q:    dbgen.New(pool),
	}
}

// WithMetrics enables query duration metrics.
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// Artifact is an issued collectible as stored in the ownership ledger.
type Artifact struct {
	ArtifactID        string
	ArtifactURI       *string // nil when metadata upload failed
	ImageURI          string
	OwnerAccount      string
	MetadataSignature *string
	CreatedAt         time.Time
}

// Purchase links a redeemed transaction reference to the artifact it bought.
type Purchase struct {
	ID                   int64
	TransactionReference string
	PayerAccount         string
	ArtifactID           string
	CreatedAt            time.Time
}

// CreateArtifactParams contains the parameters for storing an artifact.
type CreateArtifactParams struct {
	ArtifactID        string
	ArtifactURI       *string
	ImageURI          string
	OwnerAccount      string
	MetadataSignature *string
	IssuedAt          time.Time
}

// RecordPurchaseParams contains everything persisted for one redeemed payment.
type RecordPurchaseParams struct {
	Artifact             CreateArtifactParams
	TransactionReference string
	PayerAccount         string
}

// RecordPurchase stores the artifact and then the purchase that references
// it in a single database transaction. Either both rows are committed or
// neither is. A second purchase of the same transaction reference fails with
// ErrDuplicateTransaction and leaves no artifact behind.
func (s *Store) RecordPurchase(ctx context.Context, params RecordPurchaseParams) (*Purchase, *Artifact, error) {
	var err error
	defer metrics.Timer(time.Now(), func(d float64) {
		if s.metrics != nil {
			s.metrics.RecordDBQuery("record_purchase", "purchases", d, err)
		}
	})()

	var purchase *Purchase
	var artifact *Artifact
	err = s.withTx(ctx, func(q *dbgen.Queries) error {
		a, err := q.CreateArtifact(ctx, dbgen.CreateArtifactParams{
			ArtifactID:        params.Artifact.ArtifactID,
			ArtifactUri:       pgtextFromStringPtr(params.Artifact.ArtifactURI),
			ImageUri:          params.Artifact.ImageURI,
			OwnerAccount:      params.Artifact.OwnerAccount,
			MetadataSignature: pgtextFromStringPtr(params.Artifact.MetadataSignature),
			CreatedAt:         pgtimestamptz(params.Artifact.IssuedAt),
		})
		if err != nil {
			return fmt.Errorf("insert artifact: %w", translateError(err))
		}
		artifact = dbArtifactToDomain(&a)

		p, err := q.CreatePurchase(ctx, dbgen.CreatePurchaseParams{
			TransactionReference: params.TransactionReference,
			PayerAccount:         params.PayerAccount,
			ArtifactID:           a.ArtifactID,
		})
		if err != nil {
			return fmt.Errorf("insert purchase: %w", translateError(err))
		}
		purchase = dbPurchaseToDomain(&p)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return purchase, artifact, nil
}

// GetPurchase retrieves the purchase recorded for a transaction reference.
func (s *Store) GetPurchase(ctx context.Context, transactionReference string) (*Purchase, error) {
	result, err := s.q.GetPurchaseByTransactionReference(ctx, transactionReference)
	if err != nil {
		return nil, translateError(err)
	}
	return dbPurchaseToDomain(&result), nil
}

// PurchaseExists reports whether a transaction reference has been redeemed.
func (s *Store) PurchaseExists(ctx context.Context, transactionReference string) (bool, error) {
	return s.q.PurchaseExists(ctx, transactionReference)
}

// GetArtifact retrieves an artifact by ID.
func (s *Store) GetArtifact(ctx context.Context, artifactID string) (*Artifact, error) {
	result, err := s.q.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, translateError(err)
	}
	return dbArtifactToDomain(&result), nil
}

// ListArtifactsByOwner returns an owner's artifacts, oldest first.
func (s *Store) ListArtifactsByOwner(ctx context.Context, ownerAccount string) ([]*Artifact, error) {
	var err error
	defer metrics.Timer(time.Now(), func(d float64) {
		if s.metrics != nil {
			s.metrics.RecordDBQuery("list", "artifacts", d, err)
		}
	})()

	results, err := s.q.ListArtifactsByOwner(ctx, ownerAccount)
	if err != nil {
		return nil, err
	}

	artifacts := make([]*Artifact, len(results))
	for i, r := range results {
		artifacts[i] = dbArtifactToDomain(&r)
	}
	return artifacts, nil
}

// ListPurchasesByPayer returns a payer's most recent purchases.
func (s *Store) ListPurchasesByPayer(ctx context.Context, payerAccount string, limit int32) ([]*Purchase, error) {
	results, err := s.q.ListPurchasesByPayer(ctx, dbgen.ListPurchasesByPayerParams{
		PayerAccount: payerAccount,
		Limit:        limit,
	})
	if err != nil {
		return nil, err
	}

	purchases := make([]*Purchase, len(results))
	for i, r := range results {
		purchases[i] = dbPurchaseToDomain(&r)
	}
	return purchases, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) withTx(ctx context.Context, fn func(q *dbgen.Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(s.q.WithTx(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", translateError(err))
	}
	return nil
}

// translateError maps driver errors onto the package sentinels.
func translateError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == purchasesTransactionReferenceKey {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("%w: %s", ErrDuplicateArtifact, pgErr.ConstraintName)
	}
	return err
}

// Helper functions to convert between domain and database types

func dbArtifactToDomain(a *dbgen.Artifact) *Artifact {
	return &Artifact{
		ArtifactID:        a.ArtifactID,
		ArtifactURI:       stringPtrFromPgtext(a.ArtifactUri),
		ImageURI:          a.ImageUri,
		OwnerAccount:      a.OwnerAccount,
		MetadataSignature: stringPtrFromPgtext(a.MetadataSignature),
		CreatedAt:         a.CreatedAt.Time,
	}
}

func dbPurchaseToDomain(p *dbgen.Purchase) *Purchase {
	return &Purchase{
		ID:                   p.ID,
		TransactionReference: p.TransactionReference,
		PayerAccount:         p.PayerAccount,
		ArtifactID:           p.ArtifactID,
		CreatedAt:            p.CreatedAt.Time,
	}
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

// pgtimestamptz stamps a zero time with the current time.
func pgtimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Time: time.Now(), Valid: true}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
