package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/domain"
	"github.com/aussiebroadwan/tokenmint/pkg/idx"
)

type tokensRepo struct {
	db   *sql.DB
	kind domain.Kind
}

func (r *tokensRepo) Insert(ctx context.Context, rec domain.TokenRecord) error {
	// Upsert by the supersede key: a live record for the same triple is
	// replaced in one statement, so there is no window with two live records.
	const q = `
		INSERT INTO tokens (id, kind, client_id, subject, redirect_uri, ticket, token_hash, valid_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, client_id, redirect_uri, subject) DO UPDATE SET
			id = excluded.id,
			ticket = excluded.ticket,
			token_hash = excluded.token_hash,
			valid_to = excluded.valid_to`

	_, err := r.db.ExecContext(ctx, q,
		rec.ID.String(),
		int(r.kind),
		rec.ClientID,
		rec.Subject,
		rec.RedirectURI,
		rec.Ticket,
		rec.TokenHash,
		rec.ValidTo.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert %s record: %w", r.kind, err)
	}
	return nil
}

func (r *tokensRepo) GetWhereValidAfter(ctx context.Context, redirectURI string, expires time.Time) ([]domain.TokenRecord, error) {
	const q = `
		SELECT id, client_id, subject, redirect_uri, ticket, token_hash, valid_to
		FROM tokens
		WHERE kind = ? AND valid_to > ? AND (? = '' OR instr(redirect_uri, ?) > 0)
		ORDER BY valid_to`

	rows, err := r.db.QueryContext(ctx, q, int(r.kind), expires.Unix(), redirectURI, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan %s records: %w", r.kind, err)
	}
	defer rows.Close()

	var out []domain.TokenRecord
	for rows.Next() {
		var (
			rec     domain.TokenRecord
			id      string
			validTo int64
		)
		if err := rows.Scan(&id, &rec.ClientID, &rec.Subject, &rec.RedirectURI, &rec.Ticket, &rec.TokenHash, &validTo); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s record row: %w", r.kind, err)
		}
		rec.ID = idx.ID(id)
		rec.ValidTo = time.Unix(validTo, 0).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan %s records: %w", r.kind, err)
	}
	return out, nil
}

func (r *tokensRepo) DeleteByKey(ctx context.Context, clientID, redirectURI, subject string) (bool, error) {
	const q = `DELETE FROM tokens WHERE kind = ? AND client_id = ? AND redirect_uri = ? AND subject = ?`

	res, err := r.db.ExecContext(ctx, q, int(r.kind), clientID, redirectURI, subject)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete %s record by key: %w", r.kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete %s record by key: %w", r.kind, err)
	}
	return n > 0, nil
}

func (r *tokensRepo) Delete(ctx context.Context, rec domain.TokenRecord) (bool, error) {
	// Single DELETE by primary key: concurrent consumers race on the row and
	// exactly one observes an affected count of 1.
	const q = `DELETE FROM tokens WHERE kind = ? AND id = ?`

	res, err := r.db.ExecContext(ctx, q, int(r.kind), rec.ID.String())
	if err != nil {
		return false, fmt.Errorf("sqlite: delete %s record: %w", r.kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete %s record: %w", r.kind, err)
	}
	return n > 0, nil
}

func (r *tokensRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM tokens WHERE kind = ? AND valid_to < ?`

	res, err := r.db.ExecContext(ctx, q, int(r.kind), before.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired %s records: %w", r.kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired %s records: %w", r.kind, err)
	}
	return n, nil
}
