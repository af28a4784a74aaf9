package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/credential"
	"github.com/escolar/backend/core/role"
)

const uniqueViolation = "23505"

type credentialRow struct {
	Email        string         `db:"email"`
	PasswordHash []byte         `db:"password_hash"`
	Role         string         `db:"role"`
	MasterID     sql.NullString `db:"master_id"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func newCredentialRow(cred credential.Credential) credentialRow {
	return credentialRow{
		Email:        cred.Email,
		PasswordHash: cred.PasswordHash,
		Role:         string(cred.Role),
		MasterID:     sql.NullString{String: cred.MasterID, Valid: cred.MasterID != ""},
		CreatedAt:    cred.CreatedAt.UTC(),
		UpdatedAt:    cred.UpdatedAt.UTC(),
	}
}

func (row credentialRow) credential() credential.Credential {
	return credential.Credential{
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         role.Role(row.Role),
		MasterID:     row.MasterID.String,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type credentialRepository struct {
	db *sqlx.DB
}

var _ credential.Repository = (*credentialRepository)(nil)

func NewCredentialRepository(db *sqlx.DB) credential.Repository {
	return &credentialRepository{db: db}
}

func (repo *credentialRepository) Find(ctx context.Context, email string) (credential.Credential, error) {
	var row credentialRow
	q := `SELECT email, password_hash, role, master_id, created_at, updated_at FROM credential WHERE email = $1`
	if err := repo.db.GetContext(ctx, &row, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credential.Credential{}, credential.ErrNotFound
		}
		return credential.Credential{}, errors.Wrap(err, "selecting credential")
	}
	return row.credential(), nil
}

func (repo *credentialRepository) Create(ctx context.Context, cred credential.Credential) error {
	q := `INSERT INTO credential (email, password_hash, role, master_id, created_at, updated_at)
		VALUES (:email, :password_hash, :role, :master_id, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newCredentialRow(cred)); err != nil {
		if isUniqueViolation(err) {
			return credential.ErrEmailExists.WithDetail(core.Detail{"email": cred.Email})
		}
		return errors.Wrap(err, "inserting credential")
	}
	return nil
}

func (repo *credentialRepository) Update(ctx context.Context, cred credential.Credential, email string) error {
	row := newCredentialRow(cred)
	q := `UPDATE credential SET email = $1, password_hash = $2, role = $3, master_id = $4, updated_at = $5 WHERE email = $6`
	res, err := repo.db.ExecContext(ctx, q, row.Email, row.PasswordHash, row.Role, row.MasterID, row.UpdatedAt, email)
	if err != nil {
		if isUniqueViolation(err) {
			return credential.ErrEmailExists.WithDetail(core.Detail{"email": cred.Email})
		}
		return errors.Wrap(err, "updating credential")
	}
	return checkAffected(res, credential.ErrNotFound)
}

func (repo *credentialRepository) Delete(ctx context.Context, email string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM credential WHERE email = $1`, email)
	if err != nil {
		return errors.Wrap(err, "deleting credential")
	}
	return checkAffected(res, credential.ErrNotFound)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// checkAffected returns notFound when res touched no row.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
