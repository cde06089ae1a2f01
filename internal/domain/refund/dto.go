// internal/domain/refund/dto.go
package refund

type CreateRequest struct {
	InvoiceID string `json:"invoiceId"`
	Reason    string `json:"reason"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type DecisionRequest struct {
	RefundID  string `json:"refundId" binding:"required"`
	Note      string `json:"note"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type ListFilters struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}
