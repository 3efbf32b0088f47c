// connection.go
//
// Database connections for the fieldgraph asset/edge graph store.

package database

import (
	"fmt"
	"log"

	"github.com/fieldline/fieldgraph/internal/config"
	"github.com/fieldline/fieldgraph/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func dialectorFor(cfg *config.Config, user, password string) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql", "mariadb":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			user,
			password,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBDatabase,
		)
		return mysql.Open(dsn), nil

	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost,
			user,
			password,
			cfg.DBDatabase,
			cfg.DBPort,
		)
		return postgres.Open(dsn), nil

	case "sqlite":
		// DBDatabase is the file path; pure-Go driver keeps the service
		// binary cgo-free
		return sqlite.Open(cfg.DBDatabase), nil

	case "sqlserver", "mssql":
		dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%s?database=%s",
			user,
			password,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBDatabase,
		)
		return sqlserver.Open(dsn), nil
	}

	return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
}

func open(dialector gorm.Dialector, connectionLimit int) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// Portable duplicate-key detection; the idempotency ledger and the
		// edge triple index both rely on gorm.ErrDuplicatedKey.
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying SQL DB for connection pool configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	// Set connection pool settings
	sqlDB.SetMaxOpenConns(connectionLimit)
	sqlDB.SetMaxIdleConns(connectionLimit / 2)

	return db, nil
}

// Connect establishes the writer connection used by the upsert path.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg, cfg.DBAppUser, cfg.DBAppPassword)
	if err != nil {
		return nil, err
	}

	db, err := open(dialector, cfg.DBAppConnectionLimit)
	if err != nil {
		return nil, err
	}

	log.Printf("Connected to %s database: %s", cfg.DBType, cfg.DBDatabase)
	return db, nil
}

// ConnectReadOnly establishes the read pool that serves registers, lists and
// dashboards through the query gateway.
func ConnectReadOnly(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg, cfg.DBReadUser, cfg.DBReadPassword)
	if err != nil {
		return nil, err
	}

	db, err := open(dialector, cfg.DBReadConnectionLimit)
	if err != nil {
		return nil, err
	}

	log.Printf("Connected to %s database (read pool): %s", cfg.DBType, cfg.DBDatabase)
	return db, nil
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Asset{},
		&models.Edge{},
		&models.IdempotencyRecord{},
		&models.AuditEntry{},
	)
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
