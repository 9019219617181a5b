// File: internal/relay/repository.go
package relay

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carelinkhq/carelink/internal/domain"
)

var (
	ErrNotFound       = errors.New("relay: not found")
	ErrNotParticipant = errors.New("relay: user is not a thread participant")
	ErrUsernameTaken  = errors.New("relay: username already taken")
)

// Repository is the gorm-backed persistence layer for the relay.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ===== users =====

func (r *Repository) CreateUser(ctx context.Context, username, passwordHash, displayName string, role domain.Role) (*UserRecord, error) {
	rec := &UserRecord{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Role:         string(role),
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		var existing UserRecord
		if lookupErr := r.db.WithContext(ctx).Where("username = ?", username).First(&existing).Error; lookupErr == nil {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return rec, nil
}

func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	var rec UserRecord
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	var rec UserRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AllUserIDs returns every account id (broadcast fan-out).
func (r *Repository) AllUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&UserRecord{}).Pluck("id", &ids).Error
	return ids, err
}

// ===== threads =====

// CreateThread persists a thread and its participant rows in one
// transaction.
func (r *Repository) CreateThread(ctx context.Context, creatorID string, threadType domain.ThreadType, clientID, displayName string, participantIDs []string) (*ThreadRecord, error) {
	now := time.Now().UTC()
	rec := &ThreadRecord{
		ID:          uuid.NewString(),
		Type:        string(threadType),
		ClientID:    clientID,
		DisplayName: displayName,
		CreatedBy:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		for _, userID := range participantIDs {
			p := &ParticipantRecord{ThreadID: rec.ID, UserID: userID, JoinedAt: now}
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ThreadsForUser returns all threads the user currently participates in,
// most recent last message first.
func (r *Repository) ThreadsForUser(ctx context.Context, userID string) ([]ThreadRecord, error) {
	var threads []ThreadRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN thread_participants ON thread_participants.thread_id = threads.id").
		Where("thread_participants.user_id = ? AND thread_participants.left_at IS NULL", userID).
		Order("threads.last_message_time DESC, threads.created_at DESC").
		Find(&threads).Error
	return threads, err
}

func (r *Repository) GetThread(ctx context.Context, threadID string) (*ThreadRecord, error) {
	var rec ThreadRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", threadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Participants returns all participant rows for a thread, current and left.
func (r *Repository) Participants(ctx context.Context, threadID string) ([]ParticipantRecord, error) {
	var rows []ParticipantRecord
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("joined_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// IsParticipant reports whether the user is a current participant.
func (r *Repository) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ParticipantRecord{}).
		Where("thread_id = ? AND user_id = ? AND left_at IS NULL", threadID, userID).
		Count(&count).Error
	return count > 0, err
}

// FindThreadByParticipants returns the thread whose current participant set
// equals sortedIDs and whose type and client scope match. The candidate scan
// runs over the first participant's threads; sets are compared in Go.
func (r *Repository) FindThreadByParticipants(ctx context.Context, sortedIDs []string, threadType domain.ThreadType, clientID string) (*ThreadRecord, error) {
	if len(sortedIDs) == 0 {
		return nil, ErrNotFound
	}

	var candidates []ThreadRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN thread_participants ON thread_participants.thread_id = threads.id").
		Where("thread_participants.user_id = ? AND thread_participants.left_at IS NULL", sortedIDs[0]).
		Where("threads.type = ?", string(threadType)).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		t := &candidates[i]
		if t.ClientID != clientID {
			continue
		}
		rows, err := r.Participants(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		var current []string
		for _, p := range rows {
			if p.LeftAt == nil {
				current = append(current, p.UserID)
			}
		}
		if len(current) != len(sortedIDs) {
			continue
		}
		sort.Strings(current)
		match := true
		for i := range current {
			if current[i] != sortedIDs[i] {
				match = false
				break
			}
		}
		if match {
			return t, nil
		}
	}
	return nil, ErrNotFound
}

// ===== messages =====

// CreateMessage persists a message and refreshes the thread preview in one
// transaction.
func (r *Repository) CreateMessage(ctx context.Context, threadID, senderID, body string, createdAt time.Time) (*MessageRecord, error) {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	rec := &MessageRecord{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: createdAt,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		return tx.Model(&ThreadRecord{}).
			Where("id = ?", threadID).
			Updates(map[string]interface{}{
				"last_message_preview": body,
				"last_message_time":    createdAt,
				"updated_at":           time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// MessagesForThread returns the thread's messages in ascending created-at
// order.
func (r *Repository) MessagesForThread(ctx context.Context, threadID string) ([]MessageRecord, error) {
	var msgs []MessageRecord
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	return msgs, err
}

// ReadReceipts returns all receipts for a set of messages.
func (r *Repository) ReadReceipts(ctx context.Context, messageIDs []string) ([]ReadReceiptRecord, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var rows []ReadReceiptRecord
	err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("read_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// MarkThreadRead records the user as having read every message in the thread
// they did not send, returning only the receipts newly created. The unique
// (message, user) index plus the DoNothing clause makes replays idempotent.
func (r *Repository) MarkThreadRead(ctx context.Context, threadID, userID string, readAt time.Time) ([]ReadReceiptRecord, error) {
	msgs, err := r.MessagesForThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	existing := map[string]bool{}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	prior, err := r.ReadReceipts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, rr := range prior {
		if rr.UserID == userID {
			existing[rr.MessageID] = true
		}
	}

	var created []ReadReceiptRecord
	for _, m := range msgs {
		if m.SenderID == userID || existing[m.ID] {
			continue
		}
		rec := ReadReceiptRecord{
			MessageID: m.ID,
			UserID:    userID,
			ThreadID:  threadID,
			ReadAt:    readAt,
		}
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&rec)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			created = append(created, rec)
		}
	}
	return created, nil
}

// UnreadCount counts messages in the thread the user has neither sent nor
// read.
func (r *Repository) UnreadCount(ctx context.Context, threadID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&MessageRecord{}).
		Where("thread_id = ? AND sender_id != ?", threadID, userID).
		Where("id NOT IN (?)", r.db.Model(&ReadReceiptRecord{}).
			Select("message_id").
			Where("thread_id = ? AND user_id = ?", threadID, userID)).
		Count(&count).Error
	return count, err
}
