package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var _ Backend = (*PostgresBackend)(nil)

// rowRecord is one stored row in the arena_rows table.
type rowRecord struct {
	Tbl    string `gorm:"column:tbl;primaryKey;size:64"`
	RowKey string `gorm:"column:row_key;primaryKey;size:255"`
	Value  []byte `gorm:"column:value;not null"`
}

func (rowRecord) TableName() string { return "arena_rows" }

// sequenceRecord is one named counter in the arena_sequences table.
type sequenceRecord struct {
	Name  string `gorm:"column:name;primaryKey;size:64"`
	Value uint64 `gorm:"column:value;not null"`
}

func (sequenceRecord) TableName() string { return "arena_sequences" }

// PostgresBackend stores all tables in two SQL tables through gorm.
type PostgresBackend struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and returns a migrated backend.
func OpenPostgres(dsn string) (*PostgresBackend, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to postgres")
	}
	return NewPostgresBackend(db)
}

// NewPostgresBackend migrates the arena tables on db and returns the backend.
func NewPostgresBackend(db *gorm.DB) (*PostgresBackend, error) {
	if err := db.AutoMigrate(&rowRecord{}, &sequenceRecord{}); err != nil {
		return nil, eris.Wrap(err, "failed to migrate arena tables")
	}
	return &PostgresBackend{db: db}, nil
}

func (p *PostgresBackend) Get(ctx context.Context, table, key string) ([]byte, bool, error) {
	var rec rowRecord
	err := p.db.WithContext(ctx).Where("tbl = ? AND row_key = ?", table, key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "")
	}
	return rec.Value, true, nil
}

func (p *PostgresBackend) Scan(ctx context.Context, table string) ([]Row, error) {
	var recs []rowRecord
	if err := p.db.WithContext(ctx).Where("tbl = ?", table).Order("row_key").Find(&recs).Error; err != nil {
		return nil, eris.Wrap(err, "")
	}
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, Row{Key: rec.RowKey, Value: rec.Value})
	}
	// Collation order may differ from byte order.
	sortRows(rows)
	return rows, nil
}

func (p *PostgresBackend) Sequence(ctx context.Context, name string) (uint64, error) {
	var rec sequenceRecord
	err := p.db.WithContext(ctx).Where("name = ?", name).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "")
	}
	return rec.Value, nil
}

// Apply commits the batch in one SQL transaction.
func (p *PostgresBackend) Apply(ctx context.Context, batch Batch) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range batch.Writes {
			if w.Deleted() {
				if err := tx.Where("tbl = ? AND row_key = ?", w.Table, w.Key).Delete(&rowRecord{}).Error; err != nil {
					return err
				}
				continue
			}
			rec := rowRecord{Tbl: w.Table, RowKey: w.Key, Value: w.Value}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tbl"}, {Name: "row_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value"}),
			}).Create(&rec).Error
			if err != nil {
				return err
			}
		}
		for name, value := range batch.Sequences {
			rec := sequenceRecord{Name: name, Value: value}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"value"}),
			}).Create(&rec).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "failed to apply batch to postgres")
	}
	return nil
}

func (p *PostgresBackend) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return eris.Wrap(err, "")
	}
	return eris.Wrap(sqlDB.Close(), "")
}
