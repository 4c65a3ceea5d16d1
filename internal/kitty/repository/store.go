package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/smallbiznis/kitties/internal/kitty/domain"
	dbpkg "github.com/smallbiznis/kitties/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errCounterMissing = errors.New("kitty counter not initialised")

// Store keeps registry state in a relational database. Each RunInTx call is
// one database transaction.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// EnsureCounter creates the allocator row when it does not exist yet.
func EnsureCounter(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Counter{Name: kittyCounterName, Value: 0}).Error
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *Store) View(ctx context.Context, fn func(tx domain.Tx) error) error {
	return fn(&gormTx{db: s.db.WithContext(ctx), readOnly: true})
}

func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	db := s.db.WithContext(ctx)

	var kitties []domain.Kitty
	if err := db.Order("id ASC").Find(&kitties).Error; err != nil {
		return domain.Snapshot{}, err
	}
	var rows []Ownership
	if err := db.Order("owner ASC, seq ASC").Find(&rows).Error; err != nil {
		return domain.Snapshot{}, err
	}
	var counter Counter
	if err := db.Where("name = ?", kittyCounterName).Limit(1).Find(&counter).Error; err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.Snapshot{
		Records: make(map[domain.KittyID]domain.Kitty, len(kitties)),
		Owned:   make(map[domain.PrincipalID][]domain.KittyID),
		LastID:  domain.KittyID(counter.Value),
	}
	for _, kitty := range kitties {
		snap.Records[kitty.ID] = kitty
	}
	for _, row := range rows {
		snap.Owned[row.Owner] = append(snap.Owned[row.Owner], row.KittyID)
	}
	return snap, nil
}

type gormTx struct {
	db       *gorm.DB
	readOnly bool
}

func (t *gormTx) Records() domain.RecordStore { return recordStore{t} }
func (t *gormTx) Owners() domain.OwnershipIndex { return ownershipIndex{t} }
func (t *gormTx) IDs() domain.IDAllocator { return allocator{t} }

type recordStore struct{ tx *gormTx }

func (r recordStore) Get(ctx context.Context, id domain.KittyID) (*domain.Kitty, error) {
	var kitty domain.Kitty
	err := r.tx.db.WithContext(ctx).Where("id = ?", id).First(&kitty).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &kitty, nil
}

// Put inserts a record, or rewrites the owner of an existing one. The other
// columns never change after creation.
func (r recordStore) Put(ctx context.Context, kitty domain.Kitty) error {
	if r.tx.readOnly {
		return domain.ErrReadOnly
	}
	return r.tx.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner"}),
		}).
		Create(&kitty).Error
}

type ownershipIndex struct{ tx *gormTx }

func (o ownershipIndex) Get(ctx context.Context, owner domain.PrincipalID) ([]domain.Kitty, error) {
	var kitties []domain.Kitty
	err := o.tx.db.WithContext(ctx).Raw(
		`SELECT k.* FROM kitty_ownerships o
		JOIN kitties k ON k.id = o.kitty_id
		WHERE o.owner = ?
		ORDER BY o.seq ASC`, owner,
	).Scan(&kitties).Error
	if err != nil {
		return nil, err
	}
	if kitties == nil {
		kitties = []domain.Kitty{}
	}
	return kitties, nil
}

func (o ownershipIndex) Put(ctx context.Context, owner domain.PrincipalID, kitties []domain.Kitty) error {
	if o.tx.readOnly {
		return domain.ErrReadOnly
	}
	db := o.tx.db.WithContext(ctx)
	if err := db.Where("owner = ?", owner).Delete(&Ownership{}).Error; err != nil {
		return err
	}
	if len(kitties) == 0 {
		return nil
	}

	rows := make([]Ownership, 0, len(kitties))
	for i, kitty := range kitties {
		rows = append(rows, Ownership{Owner: owner, KittyID: kitty.ID, Seq: i})
	}
	if err := db.Create(&rows).Error; err != nil {
		return fmt.Errorf("index kitties for %s: %w", owner, dbpkg.WrapDuplicate(err))
	}
	return nil
}

type allocator struct{ tx *gormTx }

func (a allocator) Next(ctx context.Context) (domain.KittyID, error) {
	if a.tx.readOnly {
		return 0, domain.ErrReadOnly
	}
	db := a.tx.db.WithContext(ctx)

	res := db.Model(&Counter{}).
		Where("name = ?", kittyCounterName).
		Update("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("advance kitty counter: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, errCounterMissing
	}

	var counter Counter
	if err := db.Where("name = ?", kittyCounterName).First(&counter).Error; err != nil {
		return 0, fmt.Errorf("read kitty counter: %w", err)
	}
	if counter.Value <= 0 || counter.Value > math.MaxUint32 {
		return 0, domain.ErrIDSpaceExhausted
	}
	return domain.KittyID(counter.Value), nil
}

var _ domain.Store = (*Store)(nil)
