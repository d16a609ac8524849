package core

import (
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"jobboard/models"
)

func InitDB() (*gorm.DB, error) {
	if os.Getenv("DB_DRIVER") == "sqlite" {
		return OpenSQLite(os.Getenv("DB_PATH"))
	}

	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		sslMode,
	)

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return gormDB, nil
}

// OpenSQLite opens a file backed database for local runs and tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = "jobboard.db"
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// Migrate creates or updates every table the ingestion pipeline writes to.
func Migrate(gormDB *gorm.DB) error {
	return gormDB.AutoMigrate(
		&models.Company{},
		&models.Job{},
		&models.Investor{},
		&models.InvestorCompany{},
		&models.Fundraise{},
		&models.FundraiseInvestor{},
	)
}
