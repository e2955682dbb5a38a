// Package keyring keeps the PostgreSQL DSN in the OS credential store so
// it never lands in config.toml.
package keyring

import (
	"errors"
	"fmt"

	gokeyring "github.com/zalando/go-keyring"
)

const (
	Service = "wellspring"
	DSNUser = "postgres-dsn"
)

var (
	ErrNotFound    = errors.New("credentials not found in keyring")
	ErrUnavailable = errors.New("OS keyring is not available")
)

// DSN returns the stored connection string.
func DSN() (string, error) {
	dsn, err := gokeyring.Get(Service, DSNUser)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return dsn, nil
}

// SetDSN stores dsn, replacing any previous value.
func SetDSN(dsn string) error {
	if dsn == "" {
		return errors.New("connection string cannot be empty")
	}
	if err := gokeyring.Set(Service, DSNUser, dsn); err != nil {
		return fmt.Errorf("store credentials in keyring: %w", err)
	}
	return nil
}

// DeleteDSN removes the stored connection string.
func DeleteDSN() error {
	err := gokeyring.Delete(Service, DSNUser)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete credentials from keyring: %w", err)
	}
	return nil
}

// Available reports whether the OS keyring answers at all.
func Available() bool {
	_, err := gokeyring.Get(Service, "probe")
	return err == nil || errors.Is(err, gokeyring.ErrNotFound)
}
