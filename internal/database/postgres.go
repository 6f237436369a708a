package database

import (
	"fmt"
	"time"

	"github.com/shahariarshuvo/nesco-helper/internal/config"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	TelegramID           int64 `gorm:"uniqueIndex"`
	Username             string
	DailyReminderEnabled bool   `gorm:"default:true"`
	ReminderTime         string `gorm:"size:5;default:'20:00'"` // "HH:MM"
	Meters               []Meter
}

type Meter struct {
	gorm.Model
	UserID      uint `gorm:"index;uniqueIndex:idx_user_meter_number,priority:1"`
	User        User
	MeterNumber string          `gorm:"size:20;uniqueIndex:idx_user_meter_number,priority:2"`
	MeterName   string          `gorm:"size:100"`
	MinBalance  decimal.Decimal `gorm:"type:decimal(15,2);default:50"`
	LastBalance *decimal.Decimal `gorm:"type:decimal(15,2)"`
	LastChecked *time.Time
	Samples     []BalanceSample `gorm:"constraint:OnDelete:CASCADE"`
}

// BalanceSample is one point-in-time balance reading. Rows are append-only:
// exactly one per meter per successful check, never updated, deleted only by
// the meter cascade.
type BalanceSample struct {
	ID         uint            `gorm:"primarykey"`
	MeterID    uint            `gorm:"index:idx_sample_meter_time"`
	Balance    decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	RecordedAt time.Time       `gorm:"index:idx_sample_meter_time"`
}

func NewPostgresDB(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate applies the schema. Split out so tests can run it against an
// in-memory database.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Meter{}, &BalanceSample{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
