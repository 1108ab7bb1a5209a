package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notesweb/internal/attachments"
	"notesweb/internal/auth"
	"notesweb/internal/notes"
	"notesweb/internal/users"
)

const (
	userIDContextKey   = "notesweb_user_id"
	usernameContextKey = "notesweb_username"

	maxMultipartMemory = 8 << 20

	warningImageUpload = "image_upload_failed"
)

var (
	errMissingUsersService   = errors.New("users service dependency required")
	errMissingNotesService   = errors.New("notes service dependency required")
	errMissingSessionManager = errors.New("session manager dependency required")
	errMissingAttachments    = errors.New("attachment store dependency required")
	errMissingCookieName     = errors.New("session cookie name required")
)

// Dependencies lists the collaborators the HTTP layer is wired with.
type Dependencies struct {
	Users       *users.Service
	Notes       *notes.Service
	Sessions    *auth.Manager
	Attachments *attachments.Store
	CookieName  string
	Logger      *zap.Logger
}

// NewHTTPHandler assembles the gin router serving the note pages.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Notes == nil {
		return nil, errMissingNotesService
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}
	if deps.Attachments == nil {
		return nil, errMissingAttachments
	}
	if deps.CookieName == "" {
		return nil, errMissingCookieName
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = maxMultipartMemory
	router.SetHTMLTemplate(loadTemplates())
	router.Static(attachments.PublicPrefix, deps.Attachments.Dir())

	handler := &httpHandler{
		users:       deps.Users,
		notes:       deps.Notes,
		sessions:    deps.Sessions,
		attachments: deps.Attachments,
		cookieName:  deps.CookieName,
		logger:      logger,
	}

	router.GET("/login", handler.handleLoginPage)
	router.POST("/login", handler.handleLogin)
	router.GET("/register", handler.handleRegisterPage)
	router.POST("/register", handler.handleRegister)
	router.GET("/logout", handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.requireSession)
	protected.GET("/", handler.handleHome)
	protected.GET("/create", handler.handleCreatePage)
	protected.POST("/create", handler.handleCreate)
	protected.GET("/note/:id", handler.handleViewNote)
	protected.GET("/edit/:id", handler.handleEditPage)
	protected.POST("/edit/:id", handler.handleEdit)
	protected.GET("/delete/:id", handler.handleDelete)

	return router, nil
}

type httpHandler struct {
	users       *users.Service
	notes       *notes.Service
	sessions    *auth.Manager
	attachments *attachments.Store
	cookieName  string
	logger      *zap.Logger
}

// requireSession resolves the session cookie to an existing account or sends
// the caller to the login page. A token naming a deleted account fails closed
// exactly like a missing or invalid one.
func (h *httpHandler) requireSession(c *gin.Context) {
	token, err := c.Cookie(h.cookieName)
	if err != nil {
		h.redirectToLogin(c)
		return
	}
	userID, err := h.sessions.Resolve(token)
	if err != nil {
		h.redirectToLogin(c)
		return
	}
	account, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		if !errors.Is(err, users.ErrUserNotFound) {
			h.logger.Error("session account lookup failed", zap.Error(err))
		}
		h.redirectToLogin(c)
		return
	}
	c.Set(userIDContextKey, account.ID)
	c.Set(usernameContextKey, account.Username)
	c.Next()
}

func (h *httpHandler) redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusFound, "/login")
	c.Abort()
}

func (h *httpHandler) handleHome(c *gin.Context) {
	userID := c.GetUint(userIDContextKey)
	owned, err := h.notes.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("note listing failed", zap.Uint("user_id", userID), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}
	warning := ""
	if c.Query("warning") == warningImageUpload {
		warning = "The image could not be stored; your note was saved without it."
	}
	c.HTML(http.StatusOK, "notes.html", gin.H{
		"Username": c.GetString(usernameContextKey),
		"Notes":    owned,
		"Warning":  warning,
	})
}

func (h *httpHandler) handleLoginPage(c *gin.Context) {
	if h.hasValidSession(c) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	c.HTML(http.StatusOK, "login.html", gin.H{})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	userID, err := h.users.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		if !errors.Is(err, users.ErrInvalidCredentials) {
			h.logger.Error("login failed unexpectedly", zap.Error(err))
		}
		c.HTML(http.StatusOK, "login.html", gin.H{"Error": "Invalid username or password."})
		return
	}

	h.startSession(c, userID)
}

func (h *httpHandler) handleRegisterPage(c *gin.Context) {
	if h.hasValidSession(c) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	c.HTML(http.StatusOK, "register.html", gin.H{})
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	username := c.PostForm("username")
	email := c.PostForm("email")
	password := c.PostForm("password")
	confirm := c.PostForm("password_confirm")

	if password != confirm {
		c.HTML(http.StatusOK, "register.html", gin.H{"Error": "Passwords do not match."})
		return
	}
	if len(password) < 6 {
		c.HTML(http.StatusOK, "register.html", gin.H{"Error": "Password must be at least 6 characters."})
		return
	}

	userID, err := h.users.Register(c.Request.Context(), username, email, password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrDuplicateUsername):
			c.HTML(http.StatusOK, "register.html", gin.H{"Error": "This username is already taken."})
		case errors.Is(err, users.ErrDuplicateEmail):
			c.HTML(http.StatusOK, "register.html", gin.H{"Error": "This email is already registered."})
		default:
			h.logger.Error("registration failed unexpectedly", zap.Error(err))
			c.HTML(http.StatusOK, "register.html", gin.H{"Error": "Registration failed, please try again."})
		}
		return
	}

	h.startSession(c, userID)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if token, err := c.Cookie(h.cookieName); err == nil {
		h.sessions.Revoke(token)
	}
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	c.Redirect(http.StatusFound, "/login")
}

func (h *httpHandler) handleCreatePage(c *gin.Context) {
	c.HTML(http.StatusOK, "create.html", gin.H{})
}

func (h *httpHandler) handleCreate(c *gin.Context) {
	userID := c.GetUint(userIDContextKey)
	title := c.PostForm("title")
	content := c.PostForm("content")
	textColor := c.PostForm("text_color")

	imagePath, uploadFailed := h.saveUpload(c, userID)

	if _, err := h.notes.Create(c.Request.Context(), userID, title, content, imagePath, textColor); err != nil {
		h.logger.Error("note create failed", zap.Uint("user_id", userID), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "The note could not be saved.")
		return
	}

	h.redirectHome(c, uploadFailed)
}

func (h *httpHandler) handleViewNote(c *gin.Context) {
	noteID, ok := h.noteIDParam(c)
	if !ok {
		return
	}
	note, err := h.notes.Get(c.Request.Context(), c.GetUint(userIDContextKey), noteID)
	if err != nil {
		h.renderStoreError(c, err)
		return
	}
	c.HTML(http.StatusOK, "note.html", gin.H{"Note": note})
}

func (h *httpHandler) handleEditPage(c *gin.Context) {
	noteID, ok := h.noteIDParam(c)
	if !ok {
		return
	}
	note, err := h.notes.Get(c.Request.Context(), c.GetUint(userIDContextKey), noteID)
	if err != nil {
		h.renderStoreError(c, err)
		return
	}
	c.HTML(http.StatusOK, "edit.html", gin.H{"Note": note})
}

func (h *httpHandler) handleEdit(c *gin.Context) {
	noteID, ok := h.noteIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint(userIDContextKey)

	note, err := h.notes.Get(c.Request.Context(), userID, noteID)
	if err != nil {
		h.renderStoreError(c, err)
		return
	}

	request := notes.UpdateRequest{
		Title:     c.PostForm("title"),
		Content:   c.PostForm("content"),
		TextColor: c.PostForm("text_color"),
	}

	uploadFailed := false
	file, fileErr := c.FormFile("image")
	if fileErr == nil {
		ref, err := h.attachments.Replace(note.ImagePath, userID, file)
		if err != nil {
			h.logger.Warn("attachment replace failed", zap.Uint("note_id", noteID), zap.Error(err))
			uploadFailed = true
		} else {
			request.ImagePath = &ref
		}
	} else if !errors.Is(fileErr, http.ErrMissingFile) {
		h.logger.Warn("attachment upload unreadable", zap.Uint("note_id", noteID), zap.Error(fileErr))
		uploadFailed = true
	}

	if err := h.notes.Update(c.Request.Context(), userID, noteID, request); err != nil {
		h.renderStoreError(c, err)
		return
	}

	h.redirectHome(c, uploadFailed)
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	noteID, ok := h.noteIDParam(c)
	if !ok {
		return
	}
	note, err := h.notes.Delete(c.Request.Context(), c.GetUint(userIDContextKey), noteID)
	if err != nil {
		h.renderStoreError(c, err)
		return
	}
	if note.ImagePath != "" {
		h.attachments.Remove(note.ImagePath)
	}
	c.Redirect(http.StatusFound, "/")
}

// saveUpload stores an optional image form file. Upload problems never abort
// the enclosing note operation; they only flag a warning for the caller.
func (h *httpHandler) saveUpload(c *gin.Context, userID uint) (string, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", false
		}
		h.logger.Warn("attachment upload unreadable", zap.Uint("user_id", userID), zap.Error(err))
		return "", true
	}
	ref, err := h.attachments.Save(userID, file)
	if err != nil {
		h.logger.Warn("attachment store failed", zap.Uint("user_id", userID), zap.Error(err))
		return "", true
	}
	return ref, false
}

func (h *httpHandler) startSession(c *gin.Context, userID uint) {
	token, err := h.sessions.Issue(userID)
	if err != nil {
		h.logger.Error("session issue failed", zap.Uint("user_id", userID), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}
	maxAge := int(h.sessions.SessionTTL() / time.Second)
	c.SetCookie(h.cookieName, token, maxAge, "/", "", false, true)
	c.Redirect(http.StatusFound, "/")
}

func (h *httpHandler) hasValidSession(c *gin.Context) bool {
	token, err := c.Cookie(h.cookieName)
	if err != nil {
		return false
	}
	_, err = h.sessions.Resolve(token)
	return err == nil
}

func (h *httpHandler) noteIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		h.renderError(c, http.StatusNotFound, "Note not found.")
		return 0, false
	}
	return uint(value), true
}

func (h *httpHandler) redirectHome(c *gin.Context, uploadFailed bool) {
	target := "/"
	if uploadFailed {
		target = "/?warning=" + warningImageUpload
	}
	c.Redirect(http.StatusFound, target)
}

// renderStoreError maps note service failures to user-facing pages. Anything
// outside the known taxonomy is logged and answered with a safe redirect.
func (h *httpHandler) renderStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notes.ErrNoteNotFound):
		h.renderError(c, http.StatusNotFound, "Note not found.")
	case errors.Is(err, notes.ErrNotOwner):
		h.renderError(c, http.StatusForbidden, "You do not have access to this note.")
	default:
		h.logger.Error("note operation failed", zap.Error(err))
		c.Redirect(http.StatusFound, "/")
	}
}

func (h *httpHandler) renderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error.html", gin.H{"Status": status, "Message": message})
	c.Abort()
}
