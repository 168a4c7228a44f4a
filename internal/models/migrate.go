package models

import "gorm.io/gorm"

// AutoMigrate creates or updates all tables owned by this service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Subscription{},
		&Offer{},
		&AccessCredential{},
		&IPAssignment{},
		&RadiusProfile{},
		&ProfileAttribute{},
		&NasDevice{},
		&NasConnectionRule{},
		&RadCheck{},
		&RadReply{},
		&RadUserGroup{},
		&RadAcct{},
		&SystemPreference{},
		&User{},
	)
}
