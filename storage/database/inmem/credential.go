package inmemdb

import (
	"context"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/credential"
)

type credentialRepository struct {
	db *credentialTable
}

var _ credential.Repository = (*credentialRepository)(nil)

func NewCredentialRepository(db *DB) credential.Repository {
	return &credentialRepository{db: db.credential}
}

func copyCredential(cred credential.Credential) credential.Credential {
	if cred.PasswordHash != nil {
		hash := make([]byte, len(cred.PasswordHash))
		copy(hash, cred.PasswordHash)
		cred.PasswordHash = hash
	}
	return cred
}

func (repo *credentialRepository) Find(_ context.Context, email string) (credential.Credential, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cred, ok := repo.db.table[email]; ok {
		return copyCredential(cred), nil
	}
	return credential.Credential{}, credential.ErrNotFound
}

func (repo *credentialRepository) Create(_ context.Context, cred credential.Credential) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[cred.Email]; ok {
		return credential.ErrEmailExists.WithDetail(core.Detail{"email": cred.Email})
	}
	repo.db.table[cred.Email] = copyCredential(cred)
	return nil
}

func (repo *credentialRepository) Update(_ context.Context, cred credential.Credential, email string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[email]; !ok {
		return credential.ErrNotFound
	}
	if cred.Email != email {
		if _, ok := repo.db.table[cred.Email]; ok {
			return credential.ErrEmailExists.WithDetail(core.Detail{"email": cred.Email})
		}
		delete(repo.db.table, email)
	}
	repo.db.table[cred.Email] = copyCredential(cred)
	return nil
}

func (repo *credentialRepository) Delete(_ context.Context, email string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[email]; !ok {
		return credential.ErrNotFound
	}
	delete(repo.db.table, email)
	return nil
}
