package migrations

import (
	"context"
	"fmt"
	"io/fs"

	"stock-strategy-lab/internal/storage/sqlite"
)

// RunSQLiteMigrations applies all embedded SQL files in lexical order.
func RunSQLiteMigrations(ctx context.Context, db *sqlite.DB) error {
	files, err := sqlFiles(SQLiteFS, "sqlite")
	if err != nil {
		return err
	}

	for _, file := range files {
		data, err := fs.ReadFile(SQLiteFS, "sqlite/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}
