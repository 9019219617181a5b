// File: internal/relay/models.go
package relay

import (
	"time"

	"gorm.io/gorm"

	"github.com/carelinkhq/carelink/internal/domain"
)

// UserRecord is a relay account. Passwords are bcrypt hashes.
type UserRecord struct {
	ID           string `gorm:"primaryKey;type:char(36)"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
	Role         string `gorm:"type:varchar(20);not null"`
	CreatedAt    time.Time
}

func (UserRecord) TableName() string { return "users" }

// ThreadRecord is a persisted conversation thread.
type ThreadRecord struct {
	ID                 string `gorm:"primaryKey;type:char(36)"`
	Type               string `gorm:"type:varchar(20);not null"`
	ClientID           string `gorm:"index"`
	DisplayName        string
	CreatedBy          string `gorm:"type:char(36);not null"`
	LastMessagePreview string
	LastMessageTime    time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (ThreadRecord) TableName() string { return "threads" }

// ParticipantRecord ties a user to a thread. A non-null LeftAt marks a
// participant who left; they stay on the row so read receipts recorded
// before leaving survive.
type ParticipantRecord struct {
	ID       uint   `gorm:"primaryKey"`
	ThreadID string `gorm:"index:idx_thread_user,unique;type:char(36);not null"`
	UserID   string `gorm:"index:idx_thread_user,unique;type:char(36);not null"`
	JoinedAt time.Time
	LeftAt   *time.Time
}

func (ParticipantRecord) TableName() string { return "thread_participants" }

// MessageRecord is a persisted message.
type MessageRecord struct {
	ID        string    `gorm:"primaryKey;type:char(36)"`
	ThreadID  string    `gorm:"index;type:char(36);not null"`
	SenderID  string    `gorm:"type:char(36);not null"`
	Body      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (MessageRecord) TableName() string { return "messages" }

// ReadReceiptRecord marks a message as read by a user. The unique index
// makes receipt writes idempotent.
type ReadReceiptRecord struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID string `gorm:"index:idx_message_reader,unique;type:char(36);not null"`
	UserID    string `gorm:"index:idx_message_reader,unique;type:char(36);not null"`
	ThreadID  string `gorm:"index;type:char(36);not null"`
	ReadAt    time.Time
}

func (ReadReceiptRecord) TableName() string { return "read_receipts" }

// Migrate creates or updates the relay schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserRecord{},
		&ThreadRecord{},
		&ParticipantRecord{},
		&MessageRecord{},
		&ReadReceiptRecord{},
	)
}

func (u *UserRecord) toDomain() domain.User {
	return domain.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Role:        domain.Role(u.Role),
		CreatedAt:   u.CreatedAt,
	}
}
