package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/auth"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/cache"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/document"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/registry"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/ws"
)

const identityContextKey = "collab_identity"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingRegistry      = errors.New("registry dependency required")
	errMissingStore         = errors.New("document store dependency required")
	errMissingWSHandler     = errors.New("websocket handler dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates access tokens.
type TokenManager interface {
	Issue(identity auth.Identity) (string, int64, error)
	Validate(token string) (auth.Identity, error)
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	TokenManager TokenManager
	Registry     *registry.Service
	Store        *document.Store
	WSHandler    *ws.Handler
	KeyValue     cache.KeyValue
	Logger       *zap.Logger
}

// NewHTTPHandler builds the router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.WSHandler == nil {
		return nil, errMissingWSHandler
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:   deps.TokenManager,
		registry: deps.Registry,
		store:    deps.Store,
		wsrv:     deps.WSHandler,
		kv:       deps.KeyValue,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins; access control
			// is the bearer token, not the origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth/token", handler.handleIssueToken)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/documents", handler.handleCreateDocument)
	protected.GET("/documents", handler.handleListDocuments)
	protected.GET("/documents/:id", handler.handleGetDocument)
	protected.PUT("/documents/:id/title", handler.handleRenameDocument)
	protected.DELETE("/documents/:id", handler.handleArchiveDocument)

	router.GET("/ws", handler.handleWebsocket)

	return router, nil
}

type httpHandler struct {
	tokens   TokenManager
	registry *registry.Service
	store    *document.Store
	wsrv     *ws.Handler
	kv       cache.KeyValue
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.kv != nil {
		if err := h.kv.Ping(c.Request.Context()); err != nil {
			h.logger.Warn("key-value store unreachable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "cache": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type tokenRequestPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleIssueToken(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.tokens.Issue(auth.Identity{
		UserID:      strings.TrimSpace(request.UserID),
		DisplayName: strings.TrimSpace(request.DisplayName),
	})
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type createDocumentPayload struct {
	Title          string `json:"title"`
	Kind           string `json:"kind"`
	InitialContent string `json:"initial_content"`
}

type documentResponsePayload struct {
	DocumentID       string `json:"document_id"`
	Title            string `json:"title"`
	OwnerID          string `json:"owner_id"`
	Kind             string `json:"kind"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	UpdatedAtSeconds int64  `json:"updated_at_s"`
	Version          int64  `json:"version,omitempty"`
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	identity := h.identityFrom(c)
	if identity.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createDocumentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record, err := h.registry.CreateDocument(c.Request.Context(), identity.UserID, request.Title, request.Kind)
	if errors.Is(err, registry.ErrInvalidTitle) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_title"})
		return
	}
	if err != nil {
		h.logger.Error("failed to create document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	snapshot, err := h.store.Create(c.Request.Context(), record.DocumentID, request.InitialContent, identity.UserID)
	if err != nil {
		h.logger.Error("failed to seed document content", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	c.JSON(http.StatusCreated, recordResponse(record, snapshot.Version))
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	identity := h.identityFrom(c)
	records, err := h.registry.ListByOwner(c.Request.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("failed to list documents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	response := make([]documentResponsePayload, 0, len(records))
	for _, record := range records {
		response = append(response, recordResponse(record, 0))
	}
	c.JSON(http.StatusOK, gin.H{"documents": response})
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	documentID, err := registry.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}

	record, err := h.registry.GetDocument(c.Request.Context(), documentID)
	if errors.Is(err, registry.ErrDocumentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get_failed"})
		return
	}

	version := int64(0)
	if snapshot, err := h.store.Get(c.Request.Context(), record.DocumentID); err == nil {
		version = snapshot.Version
	}
	c.JSON(http.StatusOK, recordResponse(record, version))
}

type renameDocumentPayload struct {
	Title string `json:"title"`
}

func (h *httpHandler) handleRenameDocument(c *gin.Context) {
	documentID, err := registry.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}
	var request renameDocumentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err = h.registry.RenameDocument(c.Request.Context(), documentID, request.Title)
	switch {
	case errors.Is(err, registry.ErrInvalidTitle):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_title"})
	case errors.Is(err, registry.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case err != nil:
		h.logger.Error("failed to rename document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rename_failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "renamed"})
	}
}

func (h *httpHandler) handleArchiveDocument(c *gin.Context) {
	documentID, err := registry.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}

	err = h.registry.ArchiveDocument(c.Request.Context(), documentID)
	switch {
	case errors.Is(err, registry.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case err != nil:
		h.logger.Error("failed to archive document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive_failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "archived"})
	}
}

// handleWebsocket authenticates and upgrades. Browsers cannot set headers on
// websocket dials, so the token may also arrive as a query parameter.
func (h *httpHandler) handleWebsocket(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	identity, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("websocket token validation failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	if err := h.wsrv.Serve(c.Request.Context(), socket, identity); err != nil {
		h.logger.Warn("websocket session failed", zap.Error(err))
		socket.Close()
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	identity, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func (h *httpHandler) identityFrom(c *gin.Context) auth.Identity {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return auth.Identity{}
	}
	identity, ok := value.(auth.Identity)
	if !ok {
		return auth.Identity{}
	}
	return identity
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func recordResponse(record registry.Record, version int64) documentResponsePayload {
	return documentResponsePayload{
		DocumentID:       record.DocumentID,
		Title:            record.Title,
		OwnerID:          record.OwnerID,
		Kind:             record.Kind,
		CreatedAtSeconds: record.CreatedAtSeconds,
		UpdatedAtSeconds: record.UpdatedAtSeconds,
		Version:          version,
	}
}
