package models

// Event is a row of the append-only event log
type Event struct {
	Seq         uint64 `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	EventID     string `gorm:"uniqueIndex;size:36" json:"event_id"`
	EventType   string `gorm:"index" json:"event_type"`
	Data        []byte `json:"data"`
	CommittedAt int64  `json:"committed_at"`
}

// TableName overrides the default table name
func (Event) TableName() string {
	return "events"
}
