package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"notesweb/internal/attachments"
	"notesweb/internal/auth"
	"notesweb/internal/notes"
	"notesweb/internal/users"
)

const (
	testCookieName = "session_token"
	testSecret     = "router-test-secret"
)

type testEnv struct {
	handler  http.Handler
	users    *users.Service
	notes    *notes.Service
	sessions *auth.Manager
	store    *attachments.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &notes.Note{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build notes service: %v", err)
	}
	sessionManager, err := auth.NewManager(auth.ManagerConfig{
		SigningSecret: []byte(testSecret),
		SessionTTL:    24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build session manager: %v", err)
	}
	attachmentStore, err := attachments.NewStore(attachments.StoreConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to build attachment store: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Users:       usersService,
		Notes:       notesService,
		Sessions:    sessionManager,
		Attachments: attachmentStore,
		CookieName:  testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &testEnv{
		handler:  handler,
		users:    usersService,
		notes:    notesService,
		sessions: sessionManager,
		store:    attachmentStore,
	}
}

func (e *testEnv) register(t *testing.T, username, email, password string) uint {
	t.Helper()
	userID, err := e.users.Register(context.Background(), username, email, password)
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}
	return userID
}

func (e *testEnv) sessionCookie(t *testing.T, userID uint) *http.Cookie {
	t.Helper()
	token, err := e.sessions.Issue(userID)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	return &http.Cookie{Name: testCookieName, Value: token}
}
