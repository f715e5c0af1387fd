package database

import (
	"fmt"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const connectAttempts = 10

type Config struct {
	// URL, when set, wins over the discrete fields.
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	TimeZone string
	// AutoMigrate creates or updates the payment tables on start.
	AutoMigrate bool
}

// DSN renders the libpq connection string.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	host, port, ssl, tz := c.Host, c.Port, c.SSLMode, c.TimeZone
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	if ssl == "" {
		ssl = "disable"
	}
	if tz == "" {
		tz = "America/Bogota"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		host, c.User, c.Password, c.Name, port, ssl, tz,
	)
}

func (c Config) Validate() error {
	if c.URL != "" {
		return nil
	}
	if c.User == "" || c.Password == "" || c.Name == "" {
		return fmt.Errorf("database config incomplete")
	}
	return nil
}

// Models lists every table the service owns or touches.
func Models() []interface{} {
	return []interface{}{
		&models.Course{},
		&models.Profile{},
		&models.CartItem{},
		&models.Enrollment{},
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentEvent{},
		&models.EmailOutbox{},
	}
}

var openDB = func(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

var sleep = time.Sleep

// ConnectPostgres opens the pool, retrying with a linear backoff while the
// database comes up.
func ConnectPostgres(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var db *gorm.DB
	var err error
	for i := 0; i < connectAttempts; i++ {
		db, err = openDB(cfg.DSN())
		if err == nil {
			break
		}
		logger.Warn("DB connection failed, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		sleep(time.Duration(i+1) * 2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to PostgreSQL successfully")

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(Models()...); err != nil {
			return nil, fmt.Errorf("AutoMigrate failed: %w", err)
		}
	}
	return db, nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
