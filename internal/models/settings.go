package models

import "time"

// SystemPreference is a single settings row. Keys are namespaced by
// domain ("enforcement", "radius", "backup").
type SystemPreference struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Domain string `gorm:"size:50;not null;index:idx_pref_domain_key,unique" json:"domain"`
	Key    string `gorm:"size:100;not null;index:idx_pref_domain_key,unique" json:"key"`
	Value  string `gorm:"size:1000" json:"value"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemPreference) TableName() string {
	return "system_preferences"
}
