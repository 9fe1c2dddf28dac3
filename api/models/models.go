package models

// All lists every table AutoMigrate manages, in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&UserRole{},
		&AuthorizedDevice{},
		&AuthLog{},
		&SystemConfig{},
		&GeoFence{},
		&Session{},
	}
}
