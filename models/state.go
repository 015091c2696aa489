package models

import "example.com/keeptend/domain"

// User is the device-scoped account row
type User struct {
	ID             string  `gorm:"primaryKey" json:"id"`
	Tier           string  `gorm:"not null" json:"tier"`
	Email          *string `json:"email"`
	SubscriptionID *string `json:"subscription_id"`
	SyncEnabled    bool    `gorm:"not null" json:"sync_enabled"`
	CreatedAt      int64   `gorm:"autoCreateTime:false" json:"created_at"`
}

// Usage holds one user's generation count for one calendar month
type Usage struct {
	ID        string `gorm:"primaryKey" json:"id"`
	UserID    string `gorm:"index" json:"user_id"`
	Month     string `gorm:"index" json:"month"`
	Count     int    `gorm:"not null" json:"count"`
	CreatedAt int64  `gorm:"autoCreateTime:false" json:"created_at"`
}

// Plant is a user's plant profile. Rows are soft-deleted via DeletedAt.
type Plant struct {
	ID          string  `gorm:"primaryKey" json:"id"`
	UserID      string  `gorm:"index" json:"user_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Size        *string `json:"size"`
	PhotoURI    *string `json:"photo_uri"`
	AIAnalysis  *string `gorm:"column:ai_analysis" json:"ai_analysis"`
	CreatedAt   int64   `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt   int64   `gorm:"autoUpdateTime:false" json:"updated_at"`
	SyncedAt    *int64  `json:"synced_at"`
	DeletedAt   *int64  `gorm:"index" json:"deleted_at"`
}

// ChatMessage is one turn of a plant conversation. Seq is the sequence of
// the creating event and breaks ties between equal CreatedAt values.
type ChatMessage struct {
	ID        string  `gorm:"primaryKey" json:"id"`
	PlantID   string  `gorm:"index" json:"plant_id"`
	UserID    string  `json:"user_id"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	ImageURI  *string `json:"image_uri"`
	CreatedAt int64   `gorm:"autoCreateTime:false;index" json:"created_at"`
	Seq       uint64  `gorm:"index" json:"seq"`
	SyncedAt  *int64  `json:"synced_at"`
	DeletedAt *int64  `gorm:"index" json:"deleted_at"`
}

// TableName overrides the default table name
func (User) TableName() string { return domain.TableUser }

// TableName overrides the default table name
func (Usage) TableName() string { return domain.TableUsage }

// TableName overrides the default table name
func (Plant) TableName() string { return domain.TablePlants }

// TableName overrides the default table name
func (ChatMessage) TableName() string { return domain.TableChatMessages }

// StateTables lists the materialized tables in a fixed order
func StateTables() []interface{} {
	return []interface{}{&User{}, &Usage{}, &Plant{}, &ChatMessage{}}
}
