package auth

import (
	"fmt"
	"os"
	"strings"
)

const (
	AuthModeMemory = "memory"
	AuthModeLocal  = "local"
	AuthModeDB     = "db"
)

func authModeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	switch raw {
	case "", AuthModeMemory, "mem":
		return AuthModeMemory
	case AuthModeLocal, "sqlite":
		return AuthModeLocal
	case AuthModeDB, "postgres", "postgresql":
		return AuthModeDB
	default:
		return raw
	}
}

// NewServiceFromEnv builds the auth service selected by AUTH_MODE. The
// in-memory manager is the default so a bare binary can serve traffic
// without any database.
func NewServiceFromEnv() (Service, string, error) {
	mode := authModeFromEnv()

	switch mode {
	case AuthModeMemory:
		return NewManager(), mode, nil
	case AuthModeLocal:
		manager, err := NewSQLiteManagerFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return manager, mode, nil
	case AuthModeDB:
		manager, err := NewPostgresManagerFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return manager, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid AUTH_MODE %q (supported: %s, %s, %s)",
			mode, AuthModeMemory, AuthModeLocal, AuthModeDB)
	}
}
