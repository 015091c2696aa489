package domain

// Event type names. The literal v1 prefix versions the payload schema: a new
// payload shape gets a new v2 name and its own materializer while the v1
// materializer stays around for historical replay.
const (
	TypeUserCreated    = "v1.UserCreated"
	TypeUserUpdated    = "v1.UserUpdated"
	TypeUsageRecorded  = "v1.UsageRecorded"
	TypePlantCreated   = "v1.PlantCreated"
	TypePlantUpdated   = "v1.PlantUpdated"
	TypePlantDeleted   = "v1.PlantDeleted"
	TypeMessageCreated = "v1.MessageCreated"
	TypeChatCleared    = "v1.ChatCleared"
)

// Materialized table names
const (
	TableUser         = "user"
	TableUsage        = "usage"
	TablePlants       = "plants"
	TableChatMessages = "chatMessages"
)

// Tier values
const (
	TierFree = "free"
	TierPro  = "pro"
)

// Chat roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AllTypes lists every registered event type in declaration order
var AllTypes = []string{
	TypeUserCreated,
	TypeUserUpdated,
	TypeUsageRecorded,
	TypePlantCreated,
	TypePlantUpdated,
	TypePlantDeleted,
	TypeMessageCreated,
	TypeChatCleared,
}

// Payload is the closed set of event payloads. Only types in this package
// implement it, so a type switch over Payload covers every event kind.
type Payload interface {
	EventType() string
	isPayload()
}

// Event is a committed log entry
type Event struct {
	Seq         uint64  `json:"seq"`
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Payload     Payload `json:"data"`
	CommittedAt int64   `json:"committedAt"`
}

// UserCreated creates the device-scoped user row
type UserCreated struct {
	ID             string  `json:"id" validate:"required,notblank"`
	Tier           string  `json:"tier" validate:"required,tier"`
	Email          *string `json:"email,omitempty" validate:"omitempty,email"`
	SubscriptionID *string `json:"subscriptionId,omitempty"`
	SyncEnabled    bool    `json:"syncEnabled"`
	CreatedAt      int64   `json:"createdAt" validate:"required,gt=0"`
}

// UserUpdated merges the present fields into an existing user
type UserUpdated struct {
	ID                string  `json:"id" validate:"required,notblank"`
	Tier              *string `json:"tier,omitempty" validate:"omitempty,tier"`
	Email             *string `json:"email,omitempty" validate:"omitempty,email"`
	SubscriptionID    *string `json:"subscriptionId,omitempty"`
	SyncEnabled       *bool   `json:"syncEnabled,omitempty"`
	ClearSubscription bool    `json:"clearSubscription,omitempty" validate:"excluded_with=SubscriptionID"`
}

// UsageRecorded carries the full monthly count, never a delta. Producers read
// the current count and commit count+1.
type UsageRecorded struct {
	ID        string `json:"id" validate:"required,notblank"`
	UserID    string `json:"userId" validate:"required,notblank"`
	Month     string `json:"month" validate:"required,month"`
	Count     int    `json:"count" validate:"gte=0"`
	CreatedAt int64  `json:"createdAt" validate:"required,gt=0"`
}

// PlantCreated inserts a plant
type PlantCreated struct {
	ID          string  `json:"id" validate:"required,notblank"`
	UserID      string  `json:"userId" validate:"required,notblank"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Size        *string `json:"size,omitempty"`
	PhotoURI    *string `json:"photoUri,omitempty"`
	AIAnalysis  *string `json:"aiAnalysis,omitempty"`
	CreatedAt   int64   `json:"createdAt" validate:"required,gt=0"`
	UpdatedAt   int64   `json:"updatedAt" validate:"required,gt=0"`
	SyncedAt    *int64  `json:"syncedAt,omitempty"`
}

// PlantUpdated changes only the fields it carries
type PlantUpdated struct {
	ID          string  `json:"id" validate:"required,notblank"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Size        *string `json:"size,omitempty"`
	PhotoURI    *string `json:"photoUri,omitempty"`
	AIAnalysis  *string `json:"aiAnalysis,omitempty"`
	UpdatedAt   int64   `json:"updatedAt" validate:"required,gt=0"`
	SyncedAt    *int64  `json:"syncedAt,omitempty"`
}

// PlantDeleted soft-deletes a plant
type PlantDeleted struct {
	ID        string `json:"id" validate:"required,notblank"`
	DeletedAt int64  `json:"deletedAt" validate:"required,gt=0"`
}

// MessageCreated appends a chat message to a plant conversation
type MessageCreated struct {
	ID        string  `json:"id" validate:"required,notblank"`
	PlantID   string  `json:"plantId" validate:"required,notblank"`
	UserID    string  `json:"userId" validate:"required,notblank"`
	Role      string  `json:"role" validate:"required,role"`
	Content   string  `json:"content"`
	ImageURI  *string `json:"imageUri,omitempty"`
	CreatedAt int64   `json:"createdAt" validate:"required,gt=0"`
	SyncedAt  *int64  `json:"syncedAt,omitempty"`
}

// ChatCleared soft-deletes every live message of a plant in one event
type ChatCleared struct {
	PlantID   string `json:"plantId" validate:"required,notblank"`
	DeletedAt int64  `json:"deletedAt" validate:"required,gt=0"`
}

func (UserCreated) EventType() string    { return TypeUserCreated }
func (UserUpdated) EventType() string    { return TypeUserUpdated }
func (UsageRecorded) EventType() string  { return TypeUsageRecorded }
func (PlantCreated) EventType() string   { return TypePlantCreated }
func (PlantUpdated) EventType() string   { return TypePlantUpdated }
func (PlantDeleted) EventType() string   { return TypePlantDeleted }
func (MessageCreated) EventType() string { return TypeMessageCreated }
func (ChatCleared) EventType() string    { return TypeChatCleared }

func (UserCreated) isPayload()    {}
func (UserUpdated) isPayload()    {}
func (UsageRecorded) isPayload()  {}
func (PlantCreated) isPayload()   {}
func (PlantUpdated) isPayload()   {}
func (PlantDeleted) isPayload()   {}
func (MessageCreated) isPayload() {}
func (ChatCleared) isPayload()    {}

// Tables returns the tables a payload's materializer writes to
func Tables(p Payload) []string {
	switch p.(type) {
	case UserCreated, UserUpdated:
		return []string{TableUser}
	case UsageRecorded:
		return []string{TableUsage}
	case PlantCreated, PlantUpdated, PlantDeleted:
		return []string{TablePlants}
	case MessageCreated, ChatCleared:
		return []string{TableChatMessages}
	default:
		return nil
	}
}

// UsageID keys a usage row by user and calendar month
func UsageID(userID, month string) string {
	return userID + "-" + month
}
