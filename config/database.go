package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// DatabaseDSN builds the DSN for DB_DRIVER (mysql by default, or postgres).
func DatabaseDSN() (driver, dsn string) {
	driver = strings.ToLower(Env("DB_DRIVER", "mysql"))
	host := Env("DB_HOST", "127.0.0.1")
	database := os.Getenv("DB_DATABASE")
	username := os.Getenv("DB_USERNAME")
	password := os.Getenv("DB_PASSWORD")

	switch driver {
	case "postgres", "postgresql":
		return "postgres", fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			host, Env("DB_PORT", "5432"), username, password, database, Env("DB_SSLMODE", "disable"))
	default:
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			username, password, host, Env("DB_PORT", "3306"), database)
	}
}

// Dialector returns the gorm dialector for driver.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
}

// GormConfig returns the shared gorm config. In production SQL logs are suppressed
// unless DEBUG_SQL=true.
func GormConfig() *gorm.Config {
	environment := strings.ToLower(os.Getenv("ENVIRONMENT"))
	debugSQL := strings.ToLower(os.Getenv("DEBUG_SQL"))

	logLevel := logger.Info
	if environment == "production" && debugSQL != "true" {
		logLevel = logger.Warn
	}
	return &gorm.Config{
		Logger: logger.New(
			log.New(LogWriter, "\r\n", log.LstdFlags),
			logger.Config{LogLevel: logLevel},
		),
	}
}

// OpenDB connects using the environment configuration.
func OpenDB() (*gorm.DB, error) {
	driver, dsn := DatabaseDSN()
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, GormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	return db, nil
}

func InitDB() {
	var err error
	DB, err = OpenDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	log.Println("Database connected successfully")
}
