package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/inventory"
	"storefront-service/internal/ledger"
	"storefront-service/internal/models"
	"storefront-service/internal/service"
	"storefront-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	purchases     *service.PurchaseService
	bonus         *service.BonusService
	referrals     *service.ReferralService
	catalog       *service.CatalogService
	notifications *service.NotificationService
	pause         PauseStore
}

// NewHandler creates a new HTTP handler
func NewHandler(
	purchases *service.PurchaseService,
	bonus *service.BonusService,
	referrals *service.ReferralService,
	catalog *service.CatalogService,
	notifications *service.NotificationService,
	pause PauseStore,
) *Handler {
	return &Handler{
		purchases:     purchases,
		bonus:         bonus,
		referrals:     referrals,
		catalog:       catalog,
		notifications: notifications,
		pause:         pause,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(identityMiddleware())
	v1.Use(pauseMiddleware(h.pause))
	{
		v1.POST("/purchases", h.createPurchase)
		v1.GET("/purchases", h.listPurchases)
		v1.GET("/purchases/:id", h.getPurchase)

		v1.POST("/bonus/withdraw", h.withdrawBonus)

		v1.GET("/referrals/stats", h.referralStats)
		v1.POST("/referrals/register", h.registerReferral)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/categories", h.listCategories)
		v1.GET("/categories/:id/products", h.listCategoryProducts)
	}

	admin := v1.Group("/admin")
	admin.Use(adminOnly())
	{
		admin.POST("/products", h.createProduct)
		admin.POST("/products/:id/restock", h.restockProduct)
		admin.POST("/broadcast", h.broadcast)
		admin.GET("/pause", h.getPause)
		admin.POST("/pause", h.setPause)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createPurchase handles a purchase attempt
func (h *Handler) createPurchase(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.purchases.Execute(c.Request.Context(), userID(c), req.ProductID, req.Quantity, req.IdempotencyKey)
	if err != nil {
		status, message := purchaseErrorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusCreated, order)
}

// listPurchases returns the caller's purchase history
func (h *Handler) listPurchases(c *gin.Context) {
	orders, err := h.purchases.Orders(c.Request.Context(), userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch purchases"})
		return
	}
	c.JSON(http.StatusOK, orders)
}

// getPurchase returns one of the caller's orders by public token
func (h *Handler) getPurchase(c *gin.Context) {
	order, err := h.purchases.Order(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Purchase not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch purchase"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// withdrawBonus transfers the bonus balance into the spendable balance
func (h *Handler) withdrawBonus(c *gin.Context) {
	result, err := h.bonus.WithdrawBonus(c.Request.Context(), userID(c))
	if err != nil {
		if errors.Is(err, ledger.ErrNoBonusAvailable) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No bonus balance available"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process withdrawal"})
		return
	}
	c.JSON(http.StatusCreated, result)
}

// referralStats returns the caller's referral standing
func (h *Handler) referralStats(c *gin.Context) {
	stats, err := h.referrals.Stats(c.Request.Context(), userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch referral stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type registerReferralRequest struct {
	ReferralCode string `json:"referral_code" binding:"required"`
}

// registerReferral links the caller to a referrer, once
func (h *Handler) registerReferral(c *gin.Context) {
	var req registerReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "referral_code is required"})
		return
	}

	err := h.referrals.Register(c.Request.Context(), userID(c), req.ReferralCode)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Referral registered successfully"})
	case errors.Is(err, service.ErrSelfReferral):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot refer yourself"})
	case errors.Is(err, service.ErrAlreadyReferred):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User already has a referrer"})
	case errors.Is(err, service.ErrInvalidReferralCode):
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid referral code"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register referral"})
	}
}

// listProducts returns the catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.Products(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}
	c.JSON(http.StatusOK, products)
}

// getProduct returns one product
func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	product, err := h.catalog.Product(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// listCategories returns all categories
func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
		return
	}
	c.JSON(http.StatusOK, categories)
}

// listCategoryProducts returns products in one category
func (h *Handler) listCategoryProducts(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category ID"})
		return
	}

	products, err := h.catalog.ProductsByCategory(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}
	c.JSON(http.StatusOK, products)
}

type createProductRequest struct {
	CategoryID   int64    `json:"category_id" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description"`
	Price        int64    `json:"price" binding:"required,min=1"`
	ContentUnits []string `json:"content_units" binding:"required,min=1"`
}

// createProduct adds a product with its initial content pool
func (h *Handler) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product := &models.Product{
		CategoryID:   req.CategoryID,
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		ContentUnits: req.ContentUnits,
	}
	if err := h.catalog.CreateProduct(c.Request.Context(), product); err != nil {
		if errors.Is(err, service.ErrInvalidProduct) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
		return
	}
	c.JSON(http.StatusCreated, product)
}

type restockRequest struct {
	ContentUnits []string `json:"content_units" binding:"required,min=1"`
}

// restockProduct appends content units to a product's pool
func (h *Handler) restockProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.catalog.Restock(c.Request.Context(), id, req.ContentUnits)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restock product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

type broadcastRequest struct {
	Title string `json:"title" binding:"required"`
}

// broadcast publishes an announcement to all users
func (h *Handler) broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	if err := h.notifications.Broadcast(c.Request.Context(), req.Title); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to publish broadcast"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Broadcast queued"})
}

// getPause returns the maintenance flag
func (h *Handler) getPause(c *gin.Context) {
	paused, err := h.pause.IsPaused(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read pause state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": paused})
}

type pauseRequest struct {
	Pause *bool `json:"pause" binding:"required"`
}

// setPause flips the maintenance flag
func (h *Handler) setPause(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Pause == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must contain a boolean \"pause\" field"})
		return
	}

	if err := h.pause.SetPaused(c.Request.Context(), *req.Pause); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update pause state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": *req.Pause})
}

// purchaseErrorStatus maps engine errors to HTTP responses without leaking
// storage internals.
func purchaseErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest, "Quantity must be at least 1"
	case errors.Is(err, store.ErrProductNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, "Not enough stock available"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "Insufficient balance"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	default:
		return http.StatusInternalServerError, "Failed to process purchase"
	}
}
