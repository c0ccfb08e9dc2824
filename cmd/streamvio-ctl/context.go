package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"streamvio/internal/database"
)

const (
	// Default timeout for database operations
	defaultTimeout     = 30 * time.Second
	defaultDatabaseDir = "/database"
	defaultMediaDir    = "/media"
	databaseFile       = "streamvio.db"
)

type commandContext struct {
	databaseDir string
	mediaDir    string
	output      string

	dbOnce sync.Once
	db     *database.Database
	dbErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) databasePath() string {
	dir := strings.TrimSpace(c.databaseDir)
	if dir == "" {
		dir = os.Getenv("DATABASE_DIR")
	}
	if dir == "" {
		dir = defaultDatabaseDir
	}
	return filepath.Join(dir, databaseFile)
}

func (c *commandContext) mediaRoot() string {
	dir := strings.TrimSpace(c.mediaDir)
	if dir == "" {
		dir = os.Getenv("MEDIA_DIR")
	}
	if dir == "" {
		dir = defaultMediaDir
	}
	return dir
}

// database opens the store once per invocation.
func (c *commandContext) database(ctx context.Context) (*database.Database, error) {
	c.dbOnce.Do(func() {
		path := c.databasePath()
		db, err := database.New(ctx, path)
		if err != nil {
			c.dbErr = fmt.Errorf("open database %s: %w (check DATABASE_DIR)", path, err)
			return
		}
		c.db = db
	})
	return c.db, c.dbErr
}

func (c *commandContext) close() {
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, defaultTimeout)
}
