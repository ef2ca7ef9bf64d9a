package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nhle/dragonmail/internal/model"
)

// Open builds the Store described by cfg. When cfg.UseKeyring is set,
// vault must be non-nil and receives the account secrets.
func Open(cfg model.StorageConfig, vault Vault, opts ...RecordOption) (Store, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	var (
		kv  KV
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		kv, err = NewSQLiteKV(cfg.Path)
	case "bolt":
		kv, err = NewBoltKV(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	var s Store = NewRecordStore(kv, opts...)
	if cfg.UseKeyring {
		if vault == nil {
			s.Close()
			return nil, fmt.Errorf("keyring storage requested without a vault")
		}
		s = NewSecureStore(s, vault)
	}
	return s, nil
}
