package store

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/synapse-market/synapse-core/internal/store/schema"
)

// plansFTSStatements builds the full-text index over the plans table as an
// external-content FTS5 table kept in sync by triggers
var plansFTSStatements = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS plans_fts USING fts5(
		title, description, content, tags,
		content='plans', content_rowid='rowid'
	)`,
	`CREATE TRIGGER IF NOT EXISTS plans_ai AFTER INSERT ON plans BEGIN
		INSERT INTO plans_fts(rowid, title, description, content, tags)
		VALUES (new.rowid, new.title, new.description, new.content, new.tags);
	END`,
	`CREATE TRIGGER IF NOT EXISTS plans_ad AFTER DELETE ON plans BEGIN
		INSERT INTO plans_fts(plans_fts, rowid, title, description, content, tags)
		VALUES ('delete', old.rowid, old.title, old.description, old.content, old.tags);
	END`,
	`CREATE TRIGGER IF NOT EXISTS plans_au AFTER UPDATE ON plans BEGIN
		INSERT INTO plans_fts(plans_fts, rowid, title, description, content, tags)
		VALUES ('delete', old.rowid, old.title, old.description, old.content, old.tags);
		INSERT INTO plans_fts(rowid, title, description, content, tags)
		VALUES (new.rowid, new.title, new.description, new.content, new.tags);
	END`,
}

// indexedFTSStatements builds the full-text index over the ledger mirror.
// The indexer hydrates content from IPFS, so the mirror searches the same
// columns as the local store.
var indexedFTSStatements = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS indexed_plans_fts USING fts5(
		title, description, tags, content,
		content='indexed_plans', content_rowid='rowid'
	)`,
	`CREATE TRIGGER IF NOT EXISTS indexed_plans_ai AFTER INSERT ON indexed_plans BEGIN
		INSERT INTO indexed_plans_fts(rowid, title, description, tags, content)
		VALUES (new.rowid, new.title, new.description, new.tags, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS indexed_plans_ad AFTER DELETE ON indexed_plans BEGIN
		INSERT INTO indexed_plans_fts(indexed_plans_fts, rowid, title, description, tags, content)
		VALUES ('delete', old.rowid, old.title, old.description, old.tags, old.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS indexed_plans_au AFTER UPDATE ON indexed_plans BEGIN
		INSERT INTO indexed_plans_fts(indexed_plans_fts, rowid, title, description, tags, content)
		VALUES ('delete', old.rowid, old.title, old.description, old.tags, old.content);
		INSERT INTO indexed_plans_fts(rowid, title, description, tags, content)
		VALUES (new.rowid, new.title, new.description, new.tags, new.content);
	END`,
}

// OpenLocalDB opens (creating if needed) the local knowledge base database
// and migrates its schema
func OpenLocalDB(path string) (*gorm.DB, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&schema.Plan{}, &schema.Purchase{}, &schema.KeyValueStore{}); err != nil {
		return nil, fmt.Errorf("failed to migrate local schema: %w", err)
	}

	if err := execStatements(db, plansFTSStatements); err != nil {
		return nil, err
	}

	return db, nil
}

// OpenMirrorDB opens (creating if needed) the ledger mirror database and
// migrates its schema
func OpenMirrorDB(path string) (*gorm.DB, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&schema.IndexedPlan{}, &schema.ContributorAggregate{}, &schema.KeyValueStore{}); err != nil {
		return nil, fmt.Errorf("failed to migrate mirror schema: %w", err)
	}

	if err := execStatements(db, indexedFTSStatements); err != nil {
		return nil, err
	}

	return db, nil
}

// CloseDB closes the underlying sql.DB of a gorm connection
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func openSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite handles one writer at a time; serializing through a single
	// connection avoids SQLITE_BUSY under concurrent writes
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func execStatements(db *gorm.DB, statements []string) error {
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}
	return nil
}
