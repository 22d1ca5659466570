package journal

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Open picks a journal from a DSN:
//
//	""                      no journal
//	memory                  in-process
//	sqlite:<path>           SQLite file
//	csv:<dir>               orders.csv and fills.csv in dir
//	postgres://...          PostgreSQL
func Open(dsn string) (Journal, error) {
	switch {
	case dsn == "" || dsn == "none":
		return Nop{}, nil
	case dsn == "memory":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return NewSQLite(strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "csv:"):
		dir := strings.TrimPrefix(dsn, "csv:")
		return NewCSV(filepath.Join(dir, "orders.csv"), filepath.Join(dir, "fills.csv"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(dsn)
	}
	return nil, fmt.Errorf("journal: unsupported dsn %q", dsn)
}
