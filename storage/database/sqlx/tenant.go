package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/tenant"
)

type tenantRow struct {
	ID      string `db:"id"`
	CNPJ    string `db:"cnpj"`
	Version int    `db:"version"`
	Roles   []byte `db:"roles"`
}

func (row tenantRow) tenant() (*tenant.Tenant, error) {
	entries := make(map[string][]tenant.RoleAssignment)
	if len(row.Roles) > 0 {
		if err := json.Unmarshal(row.Roles, &entries); err != nil {
			return nil, errors.Wrapf(err, "decoding roles of tenant %s", row.ID)
		}
	}
	return tenant.Restore(row.ID, row.CNPJ, row.Version, entries)
}

func encodeRoles(t *tenant.Tenant) (string, error) {
	data, err := json.Marshal(t.Entries())
	if err != nil {
		return "", errors.Wrapf(err, "encoding roles of tenant %s", t.ID)
	}
	return string(data), nil
}

type tenantRepository struct {
	db *sqlx.DB
}

var (
	_ tenant.Repository          = (*tenantRepository)(nil)
	_ tenant.VersionedRepository = (*tenantRepository)(nil)
)

func NewTenantRepository(db *sqlx.DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func notFound(id string) error {
	return tenant.ErrTenantNotFound.WithDetail(core.Detail{"masterId": id})
}

func (repo *tenantRepository) Find(ctx context.Context, id string) (*tenant.Tenant, error) {
	var row tenantRow
	if err := repo.db.GetContext(ctx, &row, `SELECT id, cnpj, version, roles FROM tenant WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, errors.Wrap(err, "selecting tenant")
	}
	return row.tenant()
}

func (repo *tenantRepository) FindByEmail(ctx context.Context, email string) ([]*tenant.Tenant, error) {
	var rows []tenantRow
	q := `SELECT id, cnpj, version, roles FROM tenant WHERE roles ? $1 ORDER BY id`
	if err := repo.db.SelectContext(ctx, &rows, q, email); err != nil {
		return nil, errors.Wrap(err, "selecting tenants by email")
	}

	tenants := make([]*tenant.Tenant, 0, len(rows))
	for _, row := range rows {
		t, err := row.tenant()
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

func (repo *tenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	roles, err := encodeRoles(t)
	if err != nil {
		return err
	}
	q := `INSERT INTO tenant (id, cnpj, version, roles) VALUES ($1, $2, $3, $4)`
	if _, err := repo.db.ExecContext(ctx, q, t.ID, t.CNPJ, t.Version, roles); err != nil {
		if isUniqueViolation(err) {
			return tenant.ErrTenantExists.WithDetail(core.Detail{"masterId": t.ID})
		}
		return errors.Wrap(err, "inserting tenant")
	}
	return nil
}

func (repo *tenantRepository) Update(ctx context.Context, id string, t *tenant.Tenant) error {
	roles, err := encodeRoles(t)
	if err != nil {
		return err
	}
	var version int
	q := `UPDATE tenant SET cnpj = $1, roles = $2, version = version + 1 WHERE id = $3 RETURNING version`
	if err := repo.db.GetContext(ctx, &version, q, t.CNPJ, roles, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(id)
		}
		return errors.Wrap(err, "updating tenant")
	}
	t.Version = version
	return nil
}

func (repo *tenantRepository) UpdateVersion(ctx context.Context, id string, t *tenant.Tenant, expected int) error {
	roles, err := encodeRoles(t)
	if err != nil {
		return err
	}
	var version int
	q := `UPDATE tenant SET cnpj = $1, roles = $2, version = version + 1 WHERE id = $3 AND version = $4 RETURNING version`
	err = repo.db.GetContext(ctx, &version, q, t.CNPJ, roles, id, expected)
	switch {
	case err == nil:
		t.Version = version
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return errors.Wrap(err, "updating tenant")
	}

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM tenant WHERE id = $1)`, id); err != nil {
		return errors.Wrap(err, "checking tenant")
	}
	if !exists {
		return notFound(id)
	}
	return tenant.ErrStaleTenant.WithDetail(core.Detail{"masterId": id})
}

func (repo *tenantRepository) Delete(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM tenant WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting tenant")
	}
	return checkAffected(res, notFound(id))
}
