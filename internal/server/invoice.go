package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/tenantbill/internal/invoice/domain"
	"github.com/smallbiznis/tenantbill/pkg/db/pagination"
)

type payInvoiceRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required,max=255"`
	PaidAt           string `json:"paid_at"`
}

func (s *Server) ListSubscriptionInvoices(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	sub, ok := s.loadSubscription(c)
	if !ok {
		return
	}

	resp, err := s.invoiceSvc.ListBySubscription(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		SubscriptionID: sub.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	item, ok := s.loadInvoice(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// PayInvoice is the payment confirmation hook called once the gateway has
// captured funds.
func (s *Server) PayInvoice(c *gin.Context) {
	var req payInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	paidAt, err := parseOptionalTime(req.PaidAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("paid_at", "invalid_paid_at", "invalid paid_at"))
		return
	}

	item, ok := s.loadInvoice(c)
	if !ok {
		return
	}

	paid, err := s.invoiceSvc.MarkPaid(c.Request.Context(), invoicedomain.MarkPaidRequest{
		InvoiceID:        item.ID,
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		PaidAt:           paidAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": paid})
}

// loadInvoice reads the :id invoice and checks the owning subscription's team.
func (s *Server) loadInvoice(c *gin.Context) (invoicedomain.Invoice, bool) {
	id, ok := parseSnowflakeParam(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return invoicedomain.Invoice{}, false
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return invoicedomain.Invoice{}, false
	}

	sub, err := s.subscriptionSvc.GetByID(c.Request.Context(), item.SubscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return invoicedomain.Invoice{}, false
	}
	if err := ensureTeamAccess(c, sub.TeamID); err != nil {
		AbortWithError(c, err)
		return invoicedomain.Invoice{}, false
	}
	return item, true
}
