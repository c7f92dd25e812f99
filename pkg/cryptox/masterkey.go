package cryptox

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MasterKeyEnv overrides the key file when set.
const MasterKeyEnv = "PREPADMIN_MASTER_KEY"

const masterKeySize = 32

// LoadOrCreateMasterKey returns the key material used to seal stored tokens.
// Resolution order:
//  1. PREPADMIN_MASTER_KEY environment variable
//  2. the file at path
//  3. a freshly generated key written to path with 0600 permissions
//
// The raw material is never used directly, NewSealer derives the actual key.
func LoadOrCreateMasterKey(path string) ([]byte, error) {
	if envKey := os.Getenv(MasterKeyEnv); envKey != "" {
		return []byte(envKey), nil
	}

	if path == "" {
		return nil, errors.New("cryptox: no master key path configured")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) == 0 {
			return nil, fmt.Errorf("cryptox: master key file %s is empty", path)
		}
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read master key file: %w", err)
	}

	keyMaterial := make([]byte, masterKeySize)
	if _, err := rand.Read(keyMaterial); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create master key directory: %w", err)
		}
	}

	// O_EXCL so two processes racing on first run cannot clobber each other
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return LoadOrCreateMasterKey(path)
		}
		return nil, fmt.Errorf("failed to create master key file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(keyMaterial); err != nil {
		return nil, fmt.Errorf("failed to write master key file: %w", err)
	}

	return keyMaterial, nil
}
