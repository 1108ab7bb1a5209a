package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"notesweb/internal/notes"
)

func postMultipart(t *testing.T, env *testEnv, target string, fields map[string]string, fileName string, fileBytes []byte, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field %s: %v", key, err)
		}
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("image", fileName)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(fileBytes); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, target, &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func TestHomeListsOnlyCallerNotes(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "a@x.com", "secret1")
	bob := env.register(t, "bob", "b@x.com", "secret1")

	ctx := context.Background()
	if _, err := env.notes.Create(ctx, alice, "alice-note", "C", "", "#ff0000"); err != nil {
		t.Fatalf("failed to create note: %v", err)
	}
	if _, err := env.notes.Create(ctx, bob, "bob-note", "C", "", ""); err != nil {
		t.Fatalf("failed to create note: %v", err)
	}

	recorder := get(env, "/", env.sessionCookie(t, alice))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "alice-note") {
		t.Fatal("expected the caller's note in the listing")
	}
	if strings.Contains(body, "bob-note") {
		t.Fatal("foreign notes must not appear in the listing")
	}
	if !strings.Contains(body, "#ff0000") {
		t.Fatal("expected the note's display color in the listing")
	}
}

func TestViewNoteOwnershipAndExistence(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "a@x.com", "secret1")
	bob := env.register(t, "bob", "b@x.com", "secret1")

	noteID, err := env.notes.Create(context.Background(), alice, "wishlist", "secret-content", "", "")
	if err != nil {
		t.Fatalf("failed to create note: %v", err)
	}
	target := fmt.Sprintf("/note/%d", noteID)

	t.Run("owner-sees-note", func(t *testing.T) {
		recorder := get(env, target, env.sessionCookie(t, alice))
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected ok, got %d", recorder.Code)
		}
		if !strings.Contains(recorder.Body.String(), "secret-content") {
			t.Fatal("expected note content in body")
		}
	})
	t.Run("non-owner-forbidden", func(t *testing.T) {
		recorder := get(env, target, env.sessionCookie(t, bob))
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected forbidden, got %d", recorder.Code)
		}
		if strings.Contains(recorder.Body.String(), "secret-content") {
			t.Fatal("note content must not leak to a non-owner")
		}
	})
	t.Run("unknown-not-found", func(t *testing.T) {
		recorder := get(env, "/note/99999", env.sessionCookie(t, alice))
		if recorder.Code != http.StatusNotFound {
			t.Fatalf("expected not found, got %d", recorder.Code)
		}
	})
	t.Run("non-numeric-not-found", func(t *testing.T) {
		recorder := get(env, "/note/abc", env.sessionCookie(t, alice))
		if recorder.Code != http.StatusNotFound {
			t.Fatalf("expected not found, got %d", recorder.Code)
		}
	})
}

func TestEditAndDeleteRejectNonOwner(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "a@x.com", "secret1")
	bob := env.register(t, "bob", "b@x.com", "secret1")

	noteID, err := env.notes.Create(context.Background(), alice, "T", "C", "", "")
	if err != nil {
		t.Fatalf("failed to create note: %v", err)
	}

	bobCookie := env.sessionCookie(t, bob)

	if recorder := get(env, fmt.Sprintf("/edit/%d", noteID), bobCookie); recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden edit page, got %d", recorder.Code)
	}
	if recorder := postMultipart(t, env, fmt.Sprintf("/edit/%d", noteID), map[string]string{"title": "stolen"}, "", nil, bobCookie); recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden edit, got %d", recorder.Code)
	}
	if recorder := get(env, fmt.Sprintf("/delete/%d", noteID), bobCookie); recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden delete, got %d", recorder.Code)
	}

	// Alice is unaffected.
	note, err := env.notes.Get(context.Background(), alice, noteID)
	if err != nil {
		t.Fatalf("owner get failed: %v", err)
	}
	if note.Title != "T" {
		t.Fatalf("expected title to be untouched, got %q", note.Title)
	}
}

func TestCreateNoteWithImage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "a@x.com", "secret1")
	cookie := env.sessionCookie(t, alice)

	recorder := postMultipart(t, env, "/create", map[string]string{
		"title":      "T",
		"content":    "C",
		"text_color": "#ff0000",
	}, "photo.png", []byte("image-bytes"), cookie)

	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", recorder.Code)
	}
	if location := recorder.Header().Get("Location"); location != "/" {
		t.Fatalf("expected redirect to /, got %s", location)
	}

	owned, err := env.notes.List(context.Background(), alice)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(owned) != 1 {
		t.Fatalf("expected one note, got %d", len(owned))
	}
	if owned[0].ImagePath == "" {
		t.Fatal("expected an attachment reference")
	}
	if !env.store.Exists(owned[0].ImagePath) {
		t.Fatal("expected the attachment file on disk")
	}
	if owned[0].TextColor != "#ff0000" {
		t.Fatalf("expected color to persist, got %q", owned[0].TextColor)
	}
}

func TestCreateDegradesWhenUploadFails(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "a@x.com", "secret1")
	cookie := env.sessionCookie(t, alice)

	// .exe is rejected by the attachment store; the note must still be saved.
	recorder := postMultipart(t, env, "/create", map[string]string{
		"title":   "T",
		"content": "C",
	}, "payload.exe", []byte("not-an-image"), cookie)

	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", recorder.Code)
	}
	if location := recorder.Header().Get("Location"); !strings.Contains(location, "warning=") {
		t.Fatalf("expected a warning on the redirect, got %s", location)
	}

	owned, err := env.notes.List(context.Background(), alice)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(owned) != 1 {
		t.Fatalf("expected the note to be saved anyway, got %d notes", len(owned))
	}
	if owned[0].ImagePath != "" {
		t.Fatalf("expected no attachment reference, got %q", owned[0].ImagePath)
	}
}

func TestEditWithoutImageRetainsAttachment(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "a@x.com", "secret1")
	cookie := env.sessionCookie(t, alice)

	created := postMultipart(t, env, "/create", map[string]string{
		"title": "T", "content": "C",
	}, "photo.png", []byte("image-bytes"), cookie)
	if created.Code != http.StatusFound {
		t.Fatalf("create failed with status %d", created.Code)
	}

	owned, err := env.notes.List(context.Background(), alice)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	noteID := owned[0].ID
	originalRef := owned[0].ImagePath

	recorder := postMultipart(t, env, fmt.Sprintf("/edit/%d", noteID), map[string]string{
		"title":      "T2",
		"content":    "C2",
		"text_color": "#00ff00",
	}, "", nil, cookie)
	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", recorder.Code)
	}

	note, err := env.notes.Get(context.Background(), alice, noteID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if note.ImagePath != originalRef {
		t.Fatalf("expected attachment ref %q to be retained, got %q", originalRef, note.ImagePath)
	}
	if !env.store.Exists(originalRef) {
		t.Fatal("expected the original attachment file to survive")
	}
	if note.Title != "T2" || note.TextColor != "#00ff00" {
		t.Fatalf("unexpected note after edit: %+v", note)
	}
}

func TestEditWithNewImageReplacesAttachment(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "a@x.com", "secret1")
	cookie := env.sessionCookie(t, alice)

	created := postMultipart(t, env, "/create", map[string]string{
		"title": "T", "content": "C",
	}, "old.png", []byte("old-bytes"), cookie)
	if created.Code != http.StatusFound {
		t.Fatalf("create failed with status %d", created.Code)
	}

	owned, err := env.notes.List(context.Background(), alice)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	noteID := owned[0].ID
	oldRef := owned[0].ImagePath

	recorder := postMultipart(t, env, fmt.Sprintf("/edit/%d", noteID), map[string]string{
		"title": "T", "content": "C",
	}, "new.jpg", []byte("new-bytes"), cookie)
	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", recorder.Code)
	}

	note, err := env.notes.Get(context.Background(), alice, noteID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if note.ImagePath == oldRef {
		t.Fatal("expected a fresh attachment reference")
	}
	if env.store.Exists(oldRef) {
		t.Fatal("expected the old attachment file to be deleted")
	}
	if !env.store.Exists(note.ImagePath) {
		t.Fatal("expected the new attachment file on disk")
	}
}

func TestDeleteNoteRemovesAttachment(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "a@x.com", "secret1")
	cookie := env.sessionCookie(t, alice)

	created := postMultipart(t, env, "/create", map[string]string{
		"title": "T", "content": "C",
	}, "photo.png", []byte("image-bytes"), cookie)
	if created.Code != http.StatusFound {
		t.Fatalf("create failed with status %d", created.Code)
	}

	owned, err := env.notes.List(context.Background(), alice)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	noteID := owned[0].ID
	ref := owned[0].ImagePath

	recorder := get(env, fmt.Sprintf("/delete/%d", noteID), cookie)
	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", recorder.Code)
	}

	if _, err := env.notes.Get(context.Background(), alice, noteID); !errors.Is(err, notes.ErrNoteNotFound) {
		t.Fatalf("expected the note to be gone, got %v", err)
	}
	if env.store.Exists(ref) {
		t.Fatal("expected the attachment file to be removed")
	}
}
