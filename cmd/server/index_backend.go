package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gridnav.ai/internal/persistence/indexdb"
)

// openRuntimeIndex opens the read-model index for a board. It returns nil
// when indexing is disabled; path queries never depend on it.
func openRuntimeIndex(boardDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("GN_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(boardDir, "index", "board.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported GN_INDEX_BACKEND: %s", backend)
	}
}
