package inmemdb

import (
	"context"
	"sort"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/tenant"
)

type tenantRepository struct {
	db *tenantTable
}

var (
	_ tenant.Repository          = (*tenantRepository)(nil)
	_ tenant.VersionedRepository = (*tenantRepository)(nil)
)

func NewTenantRepository(db *DB) tenant.Repository {
	return &tenantRepository{db: db.tenant}
}

func (repo *tenantRepository) Find(_ context.Context, id string) (*tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.table[id]; ok {
		return t.Clone(), nil
	}
	return nil, tenant.ErrTenantNotFound.WithDetail(core.Detail{"masterId": id})
}

func (repo *tenantRepository) FindByEmail(_ context.Context, email string) ([]*tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tenants := make([]*tenant.Tenant, 0)
	for _, t := range repo.db.table {
		if t.HasEmail(email) {
			tenants = append(tenants, t.Clone())
		}
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })
	return tenants, nil
}

func (repo *tenantRepository) Create(_ context.Context, t *tenant.Tenant) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[t.ID]; ok {
		return tenant.ErrTenantExists.WithDetail(core.Detail{"masterId": t.ID})
	}
	repo.db.table[t.ID] = t.Clone()
	return nil
}

func (repo *tenantRepository) Update(_ context.Context, id string, t *tenant.Tenant) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return tenant.ErrTenantNotFound.WithDetail(core.Detail{"masterId": id})
	}
	repo.save(id, t)
	return nil
}

func (repo *tenantRepository) UpdateVersion(_ context.Context, id string, t *tenant.Tenant, expected int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.table[id]
	if !ok {
		return tenant.ErrTenantNotFound.WithDetail(core.Detail{"masterId": id})
	}
	if stored.Version != expected {
		return tenant.ErrStaleTenant.WithDetail(core.Detail{"masterId": id, "version": stored.Version})
	}
	repo.save(id, t)
	return nil
}

func (repo *tenantRepository) Delete(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return tenant.ErrTenantNotFound.WithDetail(core.Detail{"masterId": id})
	}
	delete(repo.db.table, id)
	return nil
}

// save stores a copy of t under id and bumps its version. Callers hold the lock.
func (repo *tenantRepository) save(id string, t *tenant.Tenant) {
	stored := t.Clone()
	stored.Version = repo.db.table[id].Version + 1
	repo.db.table[id] = stored
	t.Version = stored.Version
}
