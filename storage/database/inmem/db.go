package inmemdb

import (
	"sync"

	"github.com/escolar/backend/core/credential"
	"github.com/escolar/backend/core/tenant"
)

type (
	// DB keeps every table in memory. Rows are copied in and out so callers never share memory with the store.
	DB struct {
		credential *credentialTable
		tenant     *tenantTable
	}

	credentialTable struct {
		sync.RWMutex
		table map[string]credential.Credential
	}

	tenantTable struct {
		sync.RWMutex
		table map[string]*tenant.Tenant
	}
)

func Open() *DB {
	return &DB{
		credential: &credentialTable{table: make(map[string]credential.Credential)},
		tenant:     &tenantTable{table: make(map[string]*tenant.Tenant)},
	}
}
