package services

import (
	"context"
	"fmt"

	"github.com/dcarleson/delivd/internal/cryptox"
	"github.com/dcarleson/delivd/internal/dbx"
	"github.com/dcarleson/delivd/internal/logging"
	"github.com/dcarleson/delivd/internal/server/models"
	"github.com/dcarleson/delivd/internal/server/repositories/repomanager"
)

// KeyService owns the project key material: generation of the long-term
// keypair, granting wrapped keys to principals, and revoking every grant
// when content becomes permanently unavailable.
type KeyService struct {
	rm         repomanager.RepositoryManager
	passphrase []byte
	log        logging.Logger
}

func NewKeyService(rm repomanager.RepositoryManager, passphrase []byte, log logging.Logger) *KeyService {
	return &KeyService{rm: rm, passphrase: passphrase, log: log}
}

// GenerateProjectKeys creates the project keypair and fills in the key
// fields of p: plaintext public key, encrypted private key plus the salt
// and nonce needed to decrypt it again.
func (s *KeyService) GenerateProjectKeys(p *models.Project) error {
	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		return err
	}

	ciphertext, salt, nonce, err := cryptox.EncryptPrivateKey(kp.Private, s.passphrase)
	if err != nil {
		return fmt.Errorf("failed to protect private key: %w", err)
	}

	p.PublicKey = kp.Public
	p.PrivateKey = ciphertext
	p.PrivKeySalt = salt
	p.PrivKeyNonce = nonce
	return nil
}

// RevokeAllTx deletes every wrapped project key inside the caller's
// transaction. It must run in the same transaction as the status-history
// append so that revocation and the status change apply atomically.
func (s *KeyService) RevokeAllTx(ctx context.Context, tx dbx.DBTX, project *models.Project) error {
	n, err := s.rm.ProjectKeys(tx).RevokeAllForProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to revoke project keys: %w", err)
	}
	s.log.Info(ctx, "revoked project keys", "project", project.PublicID, "count", n)
	return nil
}

// GrantUserKey stores the project key wrapped for one user. Re-activation
// after revocation must go through this path again.
func (s *KeyService) GrantUserKey(ctx context.Context, db dbx.DBTX, projectID, userID int64, wrapped []byte) error {
	return s.rm.ProjectKeys(db).InsertUserKey(ctx, &models.ProjectUserKey{
		ProjectID: projectID,
		UserID:    userID,
		Key:       wrapped,
	})
}

// GrantInviteKey stores the project key wrapped for a pending invite.
func (s *KeyService) GrantInviteKey(ctx context.Context, db dbx.DBTX, projectID, inviteID int64, wrapped []byte) error {
	return s.rm.ProjectKeys(db).InsertInviteKey(ctx, &models.ProjectInviteKey{
		ProjectID: projectID,
		InviteID:  inviteID,
		Key:       wrapped,
	})
}
