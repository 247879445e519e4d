package vault

import (
	"context"
	"fmt"

	"fitrec/internal/config"
	"fitrec/internal/recon"
)

// NewVaultFromConfig creates a Vault implementation based on the archive
// config type. Type "none" disables archiving and returns a nil Vault.
func NewVaultFromConfig(ctx context.Context, cfg config.ArchiveConfig) (recon.Vault, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryVault(), nil
	case "s3":
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		v, err := NewFileSystemVault(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
