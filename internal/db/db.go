package db

import (
	"fmt"
	"log"

	"traffic-exp/internal/config"
	"traffic-exp/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Open connects to mysql and migrates the run tables. It returns nil, nil
// when no database is configured.
func Open(cfg *config.Config) (*gorm.DB, error) {
	if !cfg.Database.Enabled() {
		return nil, nil
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.Charset,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&model.ExperimentRun{},
		&model.RunFailure{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log.Println("database ready")
	return db, nil
}
