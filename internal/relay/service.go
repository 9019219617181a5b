// File: internal/relay/service.go
package relay

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/carelinkhq/carelink/internal/auth"
	"github.com/carelinkhq/carelink/internal/domain"
	"github.com/carelinkhq/carelink/internal/logging"
)

var (
	ErrInvalidCredentials = errors.New("relay: invalid username or password")
	ErrInvalidInput       = errors.New("relay: invalid input")
)

const tokenTTL = 24 * time.Hour

// Service implements the relay's application logic: accounts, threads,
// messages, read receipts, and live fan-out.
type Service struct {
	repo      *Repository
	hub       *Hub
	jwtSecret []byte
	logger    logging.Logger
}

func NewService(repo *Repository, hub *Hub, jwtSecret []byte, logger logging.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("relay: repository is required")
	}
	if hub == nil {
		return nil, errors.New("relay: hub is required")
	}
	if len(jwtSecret) == 0 {
		return nil, errors.New("relay: jwt secret is required")
	}
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Service{repo: repo, hub: hub, jwtSecret: jwtSecret, logger: logger}, nil
}

// ===== accounts =====

func (s *Service) SignUp(ctx context.Context, username, password, displayName string, role domain.Role) (string, domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 8 {
		return "", domain.User{}, ErrInvalidInput
	}
	if role == "" {
		role = domain.RoleCareGiver
	}
	if !role.IsValid() {
		return "", domain.User{}, ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", domain.User{}, err
	}

	rec, err := s.repo.CreateUser(ctx, username, string(hash), displayName, role)
	if err != nil {
		return "", domain.User{}, err
	}

	token, err := auth.GenerateToken(rec.ID, role, s.jwtSecret, tokenTTL)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, rec.toDomain(), nil
}

func (s *Service) SignIn(ctx context.Context, username, password string) (string, domain.User, error) {
	rec, err := s.repo.FindUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", domain.User{}, ErrInvalidCredentials
		}
		return "", domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return "", domain.User{}, ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(rec.ID, domain.Role(rec.Role), s.jwtSecret, tokenTTL)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, rec.toDomain(), nil
}

// ValidateToken parses a session token.
func (s *Service) ValidateToken(token string) (*auth.Claims, error) {
	return auth.ValidateToken(token, s.jwtSecret)
}

// ===== threads =====

// ThreadsForUser returns the user's threads with rosters and per-user unread
// counts, most recent first.
func (s *Service) ThreadsForUser(ctx context.Context, userID string) ([]domain.Thread, error) {
	records, err := s.repo.ThreadsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	threads := make([]domain.Thread, 0, len(records))
	for i := range records {
		t, err := s.threadToDomain(ctx, &records[i], userID)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, nil
}

func (s *Service) threadToDomain(ctx context.Context, rec *ThreadRecord, forUserID string) (domain.Thread, error) {
	rows, err := s.repo.Participants(ctx, rec.ID)
	if err != nil {
		return domain.Thread{}, err
	}

	t := domain.Thread{
		ID:                 rec.ID,
		Type:               domain.ThreadType(rec.Type),
		ClientID:           rec.ClientID,
		DisplayName:        rec.DisplayName,
		CreatedBy:          rec.CreatedBy,
		LastMessagePreview: rec.LastMessagePreview,
		LastMessageTime:    rec.LastMessageTime,
		CreatedAt:          rec.CreatedAt,
	}

	for _, row := range rows {
		user, err := s.repo.GetUser(ctx, row.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return domain.Thread{}, err
		}
		p := domain.Participant{
			UserID:      user.ID,
			DisplayName: user.DisplayName,
			Role:        domain.Role(user.Role),
		}
		if row.LeftAt != nil {
			t.LeftParticipants = append(t.LeftParticipants, p)
			t.LeftParticipantIDs = append(t.LeftParticipantIDs, user.ID)
		} else {
			t.Participants = append(t.Participants, p)
			t.ParticipantIDs = append(t.ParticipantIDs, user.ID)
		}
	}

	if forUserID != "" {
		unread, err := s.repo.UnreadCount(ctx, rec.ID, forUserID)
		if err != nil {
			return domain.Thread{}, err
		}
		t.UnreadCount = int(unread)
	}
	return t, nil
}

// LookupThread finds a thread by exact participant set and scope.
func (s *Service) LookupThread(ctx context.Context, userID string, participantIDs []string, threadType domain.ThreadType, clientID string) (domain.Thread, error) {
	sorted := append([]string(nil), participantIDs...)
	sort.Strings(sorted)

	rec, err := s.repo.FindThreadByParticipants(ctx, sorted, threadType, clientID)
	if err != nil {
		return domain.Thread{}, err
	}
	return s.threadToDomain(ctx, rec, userID)
}

// CreateThread persists a thread. The creator is always a participant; a
// broadcast thread includes every account.
func (s *Service) CreateThread(ctx context.Context, creatorID string, threadType domain.ThreadType, clientID, displayName string, participantIDs []string) (domain.Thread, error) {
	if !threadType.IsValid() {
		return domain.Thread{}, ErrInvalidInput
	}

	ids := append([]string(nil), participantIDs...)
	if threadType == domain.ThreadTypeBroadcast {
		all, err := s.repo.AllUserIDs(ctx)
		if err != nil {
			return domain.Thread{}, err
		}
		ids = all
	}
	hasCreator := false
	for _, id := range ids {
		if id == creatorID {
			hasCreator = true
			break
		}
	}
	if !hasCreator {
		ids = append(ids, creatorID)
	}
	if len(ids) < 2 && threadType != domain.ThreadTypeBroadcast {
		return domain.Thread{}, ErrInvalidInput
	}

	rec, err := s.repo.CreateThread(ctx, creatorID, threadType, clientID, displayName, ids)
	if err != nil {
		return domain.Thread{}, err
	}

	t, err := s.threadToDomain(ctx, rec, creatorID)
	if err != nil {
		return domain.Thread{}, err
	}

	s.hub.SendToUsers(t.ParticipantIDs, domain.NewEvent(domain.EventThreadUpdate, t))
	return t, nil
}

// ===== messages =====

// MessagesForThread returns a participant's view of the thread history with
// read-by entries attached.
func (s *Service) MessagesForThread(ctx context.Context, userID, threadID string) ([]domain.Message, error) {
	ok, err := s.repo.IsParticipant(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotParticipant
	}

	records, err := s.repo.MessagesForThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, m := range records {
		ids = append(ids, m.ID)
	}
	receipts, err := s.repo.ReadReceipts(ctx, ids)
	if err != nil {
		return nil, err
	}
	readBy := map[string][]domain.ReadBy{}
	for _, rr := range receipts {
		readBy[rr.MessageID] = append(readBy[rr.MessageID], domain.ReadBy{UserID: rr.UserID, ReadAt: rr.ReadAt})
	}

	msgs := make([]domain.Message, 0, len(records))
	for _, m := range records {
		msgs = append(msgs, domain.Message{
			ID:        m.ID,
			ThreadID:  m.ThreadID,
			SenderID:  m.SenderID,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
			ReadBy:    readBy[m.ID],
		})
	}
	return msgs, nil
}

// SendMessage persists a message and fans it out to the thread's current
// participants, sender included (the echo confirms the optimistic entry).
func (s *Service) SendMessage(ctx context.Context, senderID, threadID, body string, createdAt time.Time) (domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Message{}, ErrInvalidInput
	}
	ok, err := s.repo.IsParticipant(ctx, threadID, senderID)
	if err != nil {
		return domain.Message{}, err
	}
	if !ok {
		return domain.Message{}, ErrNotParticipant
	}

	rec, err := s.repo.CreateMessage(ctx, threadID, senderID, body, createdAt)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:        rec.ID,
		ThreadID:  rec.ThreadID,
		SenderID:  rec.SenderID,
		Body:      rec.Body,
		CreatedAt: rec.CreatedAt,
	}

	if ids, err := s.participantIDs(ctx, threadID); err == nil {
		s.hub.SendToUsers(ids, domain.NewEvent(domain.EventNewMessage, msg))
	} else {
		s.logger.Error("fan-out roster load failed", "thread_id", threadID, "error", err)
	}
	return msg, nil
}

// MarkThreadRead persists the user's read receipts for the thread and fans
// out one read_receipt event per newly read message.
func (s *Service) MarkThreadRead(ctx context.Context, userID, threadID string) error {
	ok, err := s.repo.IsParticipant(ctx, threadID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}

	created, err := s.repo.MarkThreadRead(ctx, threadID, userID, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(created) == 0 {
		return nil
	}

	ids, err := s.participantIDs(ctx, threadID)
	if err != nil {
		s.logger.Error("fan-out roster load failed", "thread_id", threadID, "error", err)
		return nil
	}
	for _, rr := range created {
		s.hub.SendToUsers(ids, domain.NewEvent(domain.EventReadReceipt, domain.ReadReceiptEvent{
			ThreadID:  rr.ThreadID,
			MessageID: rr.MessageID,
			ReadBy:    domain.ReadBy{UserID: rr.UserID, ReadAt: rr.ReadAt},
		}))
	}
	return nil
}

// RelayTyping forwards a typing signal to the thread's other participants.
// Typing signals are never persisted.
func (s *Service) RelayTyping(ctx context.Context, senderID string, sig domain.TypingSignal) {
	ok, err := s.repo.IsParticipant(ctx, sig.ThreadID, senderID)
	if err != nil || !ok {
		return
	}

	sig.UserID = senderID
	if sig.DisplayName == "" {
		if user, err := s.repo.GetUser(ctx, senderID); err == nil {
			sig.DisplayName = user.DisplayName
		}
	}

	ids, err := s.participantIDs(ctx, sig.ThreadID)
	if err != nil {
		return
	}
	recipients := ids[:0]
	for _, id := range ids {
		if id != senderID {
			recipients = append(recipients, id)
		}
	}
	s.hub.SendToUsers(recipients, domain.NewEvent(domain.EventTypingSignal, sig))
}

func (s *Service) participantIDs(ctx context.Context, threadID string) ([]string, error) {
	rows, err := s.repo.Participants(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, p := range rows {
		if p.LeftAt == nil {
			ids = append(ids, p.UserID)
		}
	}
	return ids, nil
}
