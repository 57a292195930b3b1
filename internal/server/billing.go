package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/wearly/wearly/internal/providers/pdf"
	reconciledomain "github.com/wearly/wearly/internal/reconcile/domain"
	transactiondomain "github.com/wearly/wearly/internal/transaction/domain"
)

type reconcileRequest struct {
	ExternalReference string `json:"external_reference" binding:"required"`
}

type reconcileResponse struct {
	OK         bool   `json:"ok"`
	Idempotent bool   `json:"idempotent,omitempty"`
	Status     string `json:"status,omitempty"`
}

// HandleMercadoPagoWebhook treats the notification as an untrusted hint:
// the reference it carries goes through the same verification pipeline as
// the user-return path.
func (s *Server) HandleMercadoPagoWebhook(c *gin.Context) {
	s.reconcile(c, reconciledomain.SourceWebhook)
}

func (s *Server) HandleCheckoutReturn(c *gin.Context) {
	s.reconcile(c, reconciledomain.SourceReturn)
}

func (s *Server) reconcile(c *gin.Context, source reconciledomain.Source) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.reconcileSvc.Reconcile(c.Request.Context(), reconciledomain.Request{
		UserID:            user.ID,
		ExternalReference: req.ExternalReference,
		Source:            source,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.Idempotent {
		c.JSON(http.StatusOK, reconcileResponse{OK: true, Idempotent: true})
		return
	}
	c.JSON(http.StatusOK, reconcileResponse{OK: true, Status: string(result.Status)})
}

func (s *Server) GetSubscription(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	subscription, err := s.subscriptionSvc.GetByUserID(c.Request.Context(), user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if subscription == nil {
		c.JSON(http.StatusOK, gin.H{"tier": "free", "status": "none"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tier":                 subscription.Tier,
		"status":               subscription.Status,
		"current_period_start": subscription.CurrentPeriodStart,
		"current_period_end":   subscription.CurrentPeriodEnd,
		"cancel_at_period_end": subscription.CancelAtPeriodEnd,
	})
}

func (s *Server) GetUsage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	metrics, err := s.usageSvc.GetCurrent(c.Request.Context(), user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tier":              metrics.Tier,
		"generations_used":  metrics.GenerationsUsed,
		"generations_limit": metrics.GenerationsLimit,
		"remaining":         metrics.Remaining(),
		"period_start":      metrics.PeriodStart,
		"period_end":        metrics.PeriodEnd,
	})
}

// GetReceipt renders a PDF receipt for one of the caller's approved
// charges.
func (s *Server) GetReceipt(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	rawID, err := strconv.ParseInt(c.Param("transaction_id"), 10, 64)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	txn, err := s.transactionSvc.GetByID(c.Request.Context(), snowflake.ID(rawID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	// Another user's receipt is indistinguishable from a missing one.
	if txn.UserID != user.ID {
		AbortWithError(c, ErrNotFound)
		return
	}
	if txn.Status != transactiondomain.TransactionStatusApproved {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	data := pdf.ReceiptData{
		ReceiptNumber: fmt.Sprintf("%d", txn.ID),
		DatePaid:      txn.UpdatedAt.Format("Jan 2, 2006"),
		CustomerName:  user.DisplayName,
		CustomerEmail: user.Email,
		Amount:        fmt.Sprintf("%.2f", txn.Amount),
		Currency:      txn.Currency,
		PaymentMethod: txn.Provider,
	}
	if subscription, err := s.subscriptionSvc.GetByUserID(c.Request.Context(), user.ID); err == nil && subscription != nil {
		data.PlanName = string(subscription.Tier)
		data.ServicePeriod = fmt.Sprintf("%s to %s",
			subscription.CurrentPeriodStart.Format("Jan 2, 2006"),
			subscription.CurrentPeriodEnd.Format("Jan 2, 2006"))
	}

	reader, err := s.pdfProvider.GenerateReceipt(c.Request.Context(), data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+s.pdfProvider.Filename(data)+`"`)
	c.DataFromReader(http.StatusOK, -1, "application/pdf", reader, nil)
}
