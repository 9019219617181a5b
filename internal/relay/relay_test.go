package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/carelinkhq/carelink/internal/domain"
	"github.com/carelinkhq/carelink/internal/logging"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc, err := NewService(NewRepository(db), NewHub(&logging.NoOpLogger{}), []byte("test-secret"), &logging.NoOpLogger{})
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func signUp(t *testing.T, svc *Service, username string, role domain.Role) domain.User {
	t.Helper()
	_, user, err := svc.SignUp(context.Background(), username, "password123", username, role)
	if err != nil {
		t.Fatalf("SignUp(%q) error = %v", username, err)
	}
	return user
}

func TestService_SignUpAndSignIn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	signUp(t, svc, "amira", domain.RoleCareGiver)

	if _, _, err := svc.SignUp(ctx, "amira", "password123", "Amira Again", domain.RoleCareGiver); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate sign up error = %v, want ErrUsernameTaken", err)
	}

	token, user, err := svc.SignIn(ctx, "amira", "password123")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("token subject = %q, want %q", claims.UserID, user.ID)
	}

	if _, _, err := svc.SignIn(ctx, "amira", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("bad password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestService_ThreadLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u1 := signUp(t, svc, "u1", domain.RoleCareGiver)
	u2 := signUp(t, svc, "u2", domain.RoleFamily)

	thread, err := svc.CreateThread(ctx, u1.ID, domain.ThreadTypeGeneral, "", "", []string{u2.ID})
	if err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}
	if len(thread.ParticipantIDs) != 2 {
		t.Fatalf("participants = %v, want creator included", thread.ParticipantIDs)
	}

	// Lookup by the exact participant set finds it regardless of id order.
	found, err := svc.LookupThread(ctx, u1.ID, []string{u2.ID, u1.ID}, domain.ThreadTypeGeneral, "")
	if err != nil {
		t.Fatalf("LookupThread() error = %v", err)
	}
	if found.ID != thread.ID {
		t.Errorf("lookup found %q, want %q", found.ID, thread.ID)
	}

	// A different scope is a different conversation.
	if _, err := svc.LookupThread(ctx, u1.ID, []string{u1.ID, u2.ID}, domain.ThreadTypeClient, "client-9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("scoped lookup error = %v, want ErrNotFound", err)
	}
}

func TestService_MessagesAndUnread(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u1 := signUp(t, svc, "u1", domain.RoleCareGiver)
	u2 := signUp(t, svc, "u2", domain.RoleFamily)
	outsider := signUp(t, svc, "u3", domain.RoleFamily)

	thread, err := svc.CreateThread(ctx, u1.ID, domain.ThreadTypeGeneral, "", "", []string{u2.ID})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.SendMessage(ctx, u1.ID, thread.ID, "first", time.Time{}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if _, err := svc.SendMessage(ctx, u1.ID, thread.ID, "second", time.Time{}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.SendMessage(ctx, outsider.ID, thread.ID, "intrusion", time.Time{}); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider send error = %v, want ErrNotParticipant", err)
	}
	if _, err := svc.MessagesForThread(ctx, outsider.ID, thread.ID); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider read error = %v, want ErrNotParticipant", err)
	}

	// u2 has two unread; the sender has none.
	threads, err := svc.ThreadsForUser(ctx, u2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 || threads[0].UnreadCount != 2 {
		t.Fatalf("u2 threads = %+v, want one thread with 2 unread", threads)
	}
	threads, _ = svc.ThreadsForUser(ctx, u1.ID)
	if threads[0].UnreadCount != 0 {
		t.Errorf("sender unread = %d, want 0", threads[0].UnreadCount)
	}
	if threads[0].LastMessagePreview != "second" {
		t.Errorf("preview = %q, want latest body", threads[0].LastMessagePreview)
	}
}

func TestService_MarkThreadReadIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u1 := signUp(t, svc, "u1", domain.RoleCareGiver)
	u2 := signUp(t, svc, "u2", domain.RoleFamily)

	thread, err := svc.CreateThread(ctx, u1.ID, domain.ThreadTypeGeneral, "", "", []string{u2.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SendMessage(ctx, u1.ID, thread.ID, "hello", time.Time{}); err != nil {
		t.Fatal(err)
	}

	if err := svc.MarkThreadRead(ctx, u2.ID, thread.ID); err != nil {
		t.Fatalf("MarkThreadRead() error = %v", err)
	}
	// Replay must not duplicate receipts or fail.
	if err := svc.MarkThreadRead(ctx, u2.ID, thread.ID); err != nil {
		t.Fatalf("second MarkThreadRead() error = %v", err)
	}

	msgs, err := svc.MessagesForThread(ctx, u1.ID, thread.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || len(msgs[0].ReadBy) != 1 {
		t.Fatalf("messages = %+v, want one message with one read-by entry", msgs)
	}
	if msgs[0].ReadBy[0].UserID != u2.ID {
		t.Errorf("read by %q, want %q", msgs[0].ReadBy[0].UserID, u2.ID)
	}

	threads, _ := svc.ThreadsForUser(ctx, u2.ID)
	if threads[0].UnreadCount != 0 {
		t.Errorf("unread after read = %d, want 0", threads[0].UnreadCount)
	}
}

func TestService_BroadcastIncludesEveryAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	admin := signUp(t, svc, "admin", domain.RoleAdmin)
	signUp(t, svc, "u2", domain.RoleCareGiver)
	signUp(t, svc, "u3", domain.RoleFamily)

	thread, err := svc.CreateThread(ctx, admin.ID, domain.ThreadTypeBroadcast, "", "Announcements", nil)
	if err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}
	if len(thread.ParticipantIDs) != 3 {
		t.Errorf("broadcast participants = %d, want all 3 accounts", len(thread.ParticipantIDs))
	}
}
