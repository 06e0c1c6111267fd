package recipient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectPrimaryRecipients = `
SELECT id::text,
COALESCE(email, ''),
COALESCE(phone, ''),
COALESCE(first_name, ''),
COALESCE(last_name, ''),
COALESCE(name, ''),
COALESCE(gender, ''),
created_at
FROM %s
WHERE ($1::text[] IS NULL OR lower(trim(gender)) = ANY($1))
ORDER BY created_at ASC, id ASC
`

// PrimaryStore reads registered members from the main users table.
type PrimaryStore struct {
	pool  *pgxpool.Pool
	query string
}

func NewPrimaryStore(pool *pgxpool.Pool, table string) *PrimaryStore {
	return &PrimaryStore{
		pool:  pool,
		query: fmt.Sprintf(selectPrimaryRecipients, tableIdentifier(table)),
	}
}

// tableIdentifier quotes each part of a possibly schema-qualified name.
func tableIdentifier(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func (s *PrimaryStore) ListRecipients(ctx context.Context, f Filter) ([]Row, error) {
	rows, err := s.pool.Query(ctx, s.query, f.genderValues())
	if err != nil {
		return nil, fmt.Errorf("%w: query primary recipients: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row       Row
			createdAt *time.Time
		)
		if err := rows.Scan(&row.ID, &row.Email, &row.Phone, &row.FirstName, &row.LastName, &row.Name, &row.Gender, &createdAt); err != nil {
			return nil, fmt.Errorf("scan primary recipient: %w", err)
		}
		if createdAt != nil {
			row.CreatedAt = *createdAt
		}
		if f.Matches(row) {
			out = append(out, row)
		}
	}
	return out, rows.Err()
}
