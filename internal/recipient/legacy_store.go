package recipient

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// legacyColumns are probed once when the store is opened. Only id is
// required; the older registration form never collected some of the rest.
var legacyColumns = []string{"id", "email", "phone", "first_name", "last_name", "name", "gender", "created_at"}

type legacyRow struct {
	ID        string     `gorm:"column:id"`
	Email     string     `gorm:"column:email"`
	Phone     string     `gorm:"column:phone"`
	FirstName string     `gorm:"column:first_name"`
	LastName  string     `gorm:"column:last_name"`
	Name      string     `gorm:"column:name"`
	Gender    string     `gorm:"column:gender"`
	CreatedAt *time.Time `gorm:"column:created_at"`
}

// LegacyStore reads the registration table left behind by the first signup
// path.
type LegacyStore struct {
	db      *gorm.DB
	table   string
	columns map[string]bool
}

// OpenLegacyStore connects and probes the legacy table. Any failure means
// the caller should run without a legacy store.
func OpenLegacyStore(ctx context.Context, dsn, table string) (*LegacyStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrStoreUnavailable, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(60 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	store, err := NewLegacyStore(ctx, db, table)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

func NewLegacyStore(ctx context.Context, db *gorm.DB, table string) (*LegacyStore, error) {
	migrator := db.WithContext(ctx).Migrator()
	if !migrator.HasTable(table) {
		return nil, fmt.Errorf("%w: table %s does not exist", ErrStoreUnavailable, table)
	}
	columns := make(map[string]bool, len(legacyColumns))
	for _, col := range legacyColumns {
		columns[col] = migrator.HasColumn(table, col)
	}
	if !columns["id"] {
		return nil, fmt.Errorf("%w: table %s has no id column", ErrStoreUnavailable, table)
	}
	return &LegacyStore{db: db, table: table, columns: columns}, nil
}

func (s *LegacyStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *LegacyStore) ListRecipients(ctx context.Context, f Filter) ([]Row, error) {
	genders := f.genderValues()
	if genders != nil && !s.columns["gender"] {
		// no way to place these rows in a gendered audience
		return nil, nil
	}

	tx := s.db.WithContext(ctx).Table(s.table).Select(selectExprs(s.columns))
	if genders != nil {
		tx = tx.Where("LOWER(TRIM(gender)) IN ?", genders)
	}

	var rows []legacyRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]Row, 0, len(rows))
	for _, lr := range rows {
		row := Row{
			ID:        lr.ID,
			Email:     lr.Email,
			Phone:     lr.Phone,
			FirstName: lr.FirstName,
			LastName:  lr.LastName,
			Name:      lr.Name,
			Gender:    lr.Gender,
		}
		if lr.CreatedAt != nil {
			row.CreatedAt = *lr.CreatedAt
		}
		if f.Matches(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

// selectExprs builds the select list for the columns that exist, casting
// text-like columns so NULLs and numeric ids scan into strings.
func selectExprs(columns map[string]bool) []string {
	exprs := make([]string, 0, len(legacyColumns))
	for _, col := range legacyColumns {
		if !columns[col] {
			continue
		}
		if col == "created_at" {
			exprs = append(exprs, col)
			continue
		}
		exprs = append(exprs, fmt.Sprintf("COALESCE(CAST(%s AS TEXT), '') AS %s", col, col))
	}
	return exprs
}
