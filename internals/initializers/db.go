package initializers

import (
	"github.com/AntonyShaga/booking-notes-chat/internals/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ConnectToDb opens the relational store and runs migrations. The handle is
// returned rather than stored in a package global so controllers receive it
// through construction.
func ConnectToDb(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.User{}); err != nil {
		return nil, err
	}

	return db, nil
}
