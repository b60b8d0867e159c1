package settlementd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"lukechampine.com/blake3"
)

var (
	// ErrNothingToAuthorize is returned when an account has no unissued
	// completions.
	ErrNothingToAuthorize = errors.New("settlementd: no pending completions")
	// ErrNonceMismatch is returned when the requested nonce differs from the
	// account's on-chain nonce.
	ErrNonceMismatch = errors.New("settlementd: nonce does not match chain state")
)

// Completion is a verified task completion awaiting or covered by an
// authorization.
type Completion struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Account         string     `gorm:"size:42;index;not null"`
	CampaignID      uint64     `gorm:"not null"`
	Fingerprint     string     `gorm:"size:64;uniqueIndex;not null"`
	Verifier        string     `gorm:"size:128"`
	AuthorizationID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt       time.Time
}

// Authorization is a signed batch authorization issued for an account nonce.
type Authorization struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Account     string    `gorm:"size:42;uniqueIndex:idx_authorization_account_nonce;not null"`
	Nonce       uint64    `gorm:"uniqueIndex:idx_authorization_account_nonce;not null"`
	CampaignIDs string    `gorm:"type:text;not null"`
	Signature   string    `gorm:"size:132;not null"`
	Digest      string    `gorm:"size:66;not null"`
	CreatedAt   time.Time
}

// Campaigns decodes the stored campaign id list.
func (a *Authorization) Campaigns() ([]uint64, error) {
	var ids []uint64
	if err := json.Unmarshal([]byte(a.CampaignIDs), &ids); err != nil {
		return nil, fmt.Errorf("decode campaign ids: %w", err)
	}
	return ids, nil
}

// SignFunc produces the authorization signature and batch digest for the
// supplied campaign ids.
type SignFunc func(campaignIDs []uint64) (signature []byte, digest [32]byte, err error)

// Store persists completions and issued authorizations.
type Store struct {
	db       *gorm.DB
	maxBatch int
	nowFn    func() time.Time
	tracer   trace.Tracer
}

// OpenDatabase opens the configured gorm dialect.
func OpenDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// NewStore migrates the schema and returns a store bounded to maxBatch
// campaigns per authorization.
func NewStore(db *gorm.DB, maxBatch int) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if err := db.AutoMigrate(&Completion{}, &Authorization{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if maxBatch <= 0 {
		maxBatch = 64
	}
	return &Store{db: db, maxBatch: maxBatch, nowFn: time.Now, tracer: otel.Tracer("settlementd/store")}, nil
}

// Fingerprint identifies one (account, campaign) completion.
func Fingerprint(account [20]byte, campaignID uint64) string {
	sum := blake3.Sum256([]byte(accountKey(account) + "|" + strconv.FormatUint(campaignID, 10)))
	return hex.EncodeToString(sum[:])
}

func accountKey(account [20]byte) string {
	return "0x" + hex.EncodeToString(account[:])
}

// RecordCompletion stores a completion. Recording the same account and
// campaign twice returns the original row with duplicate set.
func (s *Store) RecordCompletion(ctx context.Context, account [20]byte, campaignID uint64, verifier string) (*Completion, bool, error) {
	record := &Completion{
		ID:          uuid.New(),
		Account:     accountKey(account),
		CampaignID:  campaignID,
		Fingerprint: Fingerprint(account, campaignID),
		Verifier:    verifier,
		CreatedAt:   s.nowFn().UTC(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fingerprint"}}, DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return nil, false, fmt.Errorf("record completion: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return record, false, nil
	}
	var existing Completion
	if err := s.db.WithContext(ctx).Where("fingerprint = ?", record.Fingerprint).First(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("load completion: %w", err)
	}
	return &existing, true, nil
}

// PendingCompletions lists completions not yet covered by an authorization.
func (s *Store) PendingCompletions(ctx context.Context, account [20]byte) ([]Completion, error) {
	var rows []Completion
	err := s.db.WithContext(ctx).
		Where("account = ? AND authorization_id IS NULL", accountKey(account)).
		Order("created_at ASC, campaign_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending completions: %w", err)
	}
	return rows, nil
}

// IssueAuthorization bundles up to maxBatch pending completions for the
// account under nonce and signs them. A repeated request for the same
// account and nonce returns the stored authorization with replayed set.
func (s *Store) IssueAuthorization(ctx context.Context, account [20]byte, nonce uint64, sign SignFunc) (*Authorization, bool, error) {
	ctx, span := s.tracer.Start(ctx, "settlementd.issue_authorization",
		trace.WithAttributes(
			attribute.String("account", accountKey(account)),
			attribute.Int64("nonce", int64(nonce)),
		))
	defer span.End()
	var (
		issued   *Authorization
		replayed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Authorization
		err := tx.Where("account = ? AND nonce = ?", accountKey(account), nonce).First(&existing).Error
		switch {
		case err == nil:
			issued, replayed = &existing, true
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("load authorization: %w", err)
		}

		var pending []Completion
		err = tx.Where("account = ? AND authorization_id IS NULL", accountKey(account)).
			Order("created_at ASC, campaign_id ASC").
			Limit(s.maxBatch).
			Find(&pending).Error
		if err != nil {
			return fmt.Errorf("list pending completions: %w", err)
		}
		if len(pending) == 0 {
			return ErrNothingToAuthorize
		}
		ids := make([]uint64, len(pending))
		rowIDs := make([]string, len(pending))
		for i, row := range pending {
			ids[i] = row.CampaignID
			rowIDs[i] = row.ID.String()
		}
		signature, digest, err := sign(ids)
		if err != nil {
			return fmt.Errorf("sign authorization: %w", err)
		}
		encoded, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		record := &Authorization{
			ID:          uuid.New(),
			Account:     accountKey(account),
			Nonce:       nonce,
			CampaignIDs: string(encoded),
			Signature:   "0x" + hex.EncodeToString(signature),
			Digest:      "0x" + hex.EncodeToString(digest[:]),
			CreatedAt:   s.nowFn().UTC(),
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("store authorization: %w", err)
		}
		err = tx.Model(&Completion{}).
			Where("id IN ?", rowIDs).
			Update("authorization_id", record.ID).Error
		if err != nil {
			return fmt.Errorf("attach completions: %w", err)
		}
		issued = record
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("replayed", replayed))
	span.SetStatus(codes.Ok, "authorization issued")
	return issued, replayed, nil
}

// Authorizations lists the authorizations issued to an account, newest nonce
// first.
func (s *Store) Authorizations(ctx context.Context, account [20]byte) ([]Authorization, error) {
	var rows []Authorization
	err := s.db.WithContext(ctx).
		Where("account = ?", accountKey(account)).
		Order("nonce DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	return rows, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
