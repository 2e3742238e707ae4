package database

import (
	"log"

	"flower-backoffice/internal/config"
	"flower-backoffice/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	if err := Migrate(DB); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	log.Println("database connected, migration complete")
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Store{},
		&models.User{},
		&models.Item{},
		&models.Arrival{},
		&models.Transfer{},
		&models.Disposal{},
		&models.PriceChange{},
		&models.Supply{},
		&models.SupplyTransfer{},
		&models.AuditLog{},
	)
}
