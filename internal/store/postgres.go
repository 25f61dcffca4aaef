package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users ──

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, is_email_verified
		FROM users
		WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, role, is_email_verified
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// ── Refresh sessions (Postgres fallback when Redis is not configured) ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ── SOP records ──
//
// Every read and write takes an ownerID; the empty string disables owner
// scoping (admin access). A record owned by someone else behaves exactly
// like a missing record: callers get sql.ErrNoRows, never a forbidden.

const sopColumns = `
	s.id, s.title, s.department, s.responsible_person, s.objective, s.responsibility,
	s.procedure, s.refs, s.steps, s.effective_date, s.revision_date, s.revision_number,
	s.pdf_config, s.created_by, u.display_name, s.created_at, s.updated_at
`

func (s *PostgresStore) InsertSOP(ctx context.Context, sop SOP) error {
	refs, err := json.Marshal(stringsOrEmpty(sop.References))
	if err != nil {
		return fmt.Errorf("marshal references: %w", err)
	}
	steps, err := json.Marshal(stringsOrEmpty(sop.Steps))
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sops (id, title, department, responsible_person, objective, responsibility,
			procedure, refs, steps, effective_date, revision_date, revision_number, pdf_config, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, sop.ID, sop.Title, sop.Department, sop.ResponsiblePerson, sop.Objective, sop.Responsibility,
		sop.Procedure, refs, steps, sop.EffectiveDate, sop.RevisionDate, sop.RevisionNumber,
		nullableJSON(sop.PDFConfig), sop.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert sop: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSOPs(ctx context.Context, ownerID string) ([]SOP, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sopColumns+`
		FROM sops s
		JOIN users u ON u.id = s.created_by
		WHERE ($1 = '' OR s.created_by = $1)
		ORDER BY s.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sops: %w", err)
	}
	defer rows.Close()

	items := make([]SOP, 0)
	for rows.Next() {
		item, err := scanSOP(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sops: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetSOP(ctx context.Context, sopID, ownerID string) (SOP, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sopColumns+`
		FROM sops s
		JOIN users u ON u.id = s.created_by
		WHERE s.id = $1 AND ($2 = '' OR s.created_by = $2)
	`, sopID, ownerID)
	return scanSOP(row)
}

func (s *PostgresStore) UpdateSOP(ctx context.Context, sop SOP, ownerID string) error {
	refs, err := json.Marshal(stringsOrEmpty(sop.References))
	if err != nil {
		return fmt.Errorf("marshal references: %w", err)
	}
	steps, err := json.Marshal(stringsOrEmpty(sop.Steps))
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE sops
		SET title=$3, department=$4, responsible_person=$5, objective=$6, responsibility=$7,
			procedure=$8, refs=$9, steps=$10, effective_date=$11, revision_date=$12,
			revision_number=$13, pdf_config=$14, updated_at=NOW()
		WHERE id=$1 AND ($2 = '' OR created_by=$2)
	`, sop.ID, ownerID, sop.Title, sop.Department, sop.ResponsiblePerson, sop.Objective,
		sop.Responsibility, sop.Procedure, refs, steps, sop.EffectiveDate, sop.RevisionDate,
		sop.RevisionNumber, nullableJSON(sop.PDFConfig))
	if err != nil {
		return fmt.Errorf("update sop: %w", err)
	}
	return requireAffected(result)
}

// UpdateSOPConfig replaces the stored rendering configuration wholesale.
func (s *PostgresStore) UpdateSOPConfig(ctx context.Context, sopID, ownerID string, config json.RawMessage) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sops SET pdf_config=$3, updated_at=NOW()
		WHERE id=$1 AND ($2 = '' OR created_by=$2)
	`, sopID, ownerID, nullableJSON(config))
	if err != nil {
		return fmt.Errorf("update sop config: %w", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) DeleteSOP(ctx context.Context, sopID, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sops WHERE id=$1 AND ($2 = '' OR created_by=$2)
	`, sopID, ownerID)
	if err != nil {
		return fmt.Errorf("delete sop: %w", err)
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSOP(row rowScanner) (SOP, error) {
	var (
		item      SOP
		refs      []byte
		steps     []byte
		pdfConfig []byte
	)
	err := row.Scan(&item.ID, &item.Title, &item.Department, &item.ResponsiblePerson,
		&item.Objective, &item.Responsibility, &item.Procedure, &refs, &steps,
		&item.EffectiveDate, &item.RevisionDate, &item.RevisionNumber, &pdfConfig,
		&item.CreatedBy, &item.CreatedByName, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return SOP{}, err
	}
	if err := json.Unmarshal(refs, &item.References); err != nil {
		return SOP{}, fmt.Errorf("unmarshal references: %w", err)
	}
	if err := json.Unmarshal(steps, &item.Steps); err != nil {
		return SOP{}, fmt.Errorf("unmarshal steps: %w", err)
	}
	if len(pdfConfig) > 0 {
		item.PDFConfig = json.RawMessage(pdfConfig)
	}
	return item, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
