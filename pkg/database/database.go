package database

import (
	"errors"
	"fmt"

	"crm-service/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrQuotaExceeded is returned when a guarded counter update finds no
// headroom left.
var ErrQuotaExceeded = errors.New("user quota exceeded")

// DB is the global database instance
var DB *gorm.DB

// InitDB initializes the database connection with configuration
func InitDB(dbConfig *config.DBConfig) (*gorm.DB, error) {
	var err error

	pgConfig := postgres.Config{
		DSN:                  dbConfig.GetDSN(),
		PreferSimpleProtocol: true, // Disables implicit prepared statement usage
	}

	DB, err = gorm.Open(postgres.New(pgConfig), &gorm.Config{
		Logger: logger.Default.LogMode(dbConfig.LogLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	return DB, nil
}

// MigrateModels runs migrations for the provided models
func MigrateModels(models ...interface{}) error {
	if DB == nil {
		return fmt.Errorf("database is not initialized")
	}

	if err := DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// ConsumeUserSeat atomically increments current_users on the given row,
// but only while headroom remains. The guard in the WHERE clause makes
// the check-and-increment a single statement, so concurrent creations
// cannot overshoot max_users. Returns ErrQuotaExceeded when the row has
// no seats left.
func ConsumeUserSeat(db *gorm.DB, table string, id uint) error {
	result := db.Table(table).
		Where("id = ? AND current_users < max_users", id).
		UpdateColumn("current_users", gorm.Expr("current_users + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

// ReleaseUserSeat atomically decrements current_users, never below zero.
func ReleaseUserSeat(db *gorm.DB, table string, id uint) error {
	return db.Table(table).
		Where("id = ? AND current_users > 0", id).
		UpdateColumn("current_users", gorm.Expr("current_users - 1")).Error
}
