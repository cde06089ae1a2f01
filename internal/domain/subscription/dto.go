// internal/domain/subscription/dto.go
package subscription

import "time"

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// CheckoutRequest is validated by the billing service in a fixed order, so
// it carries no binding tags.
type CheckoutRequest struct {
	TierID          string   `json:"tierId"`
	BillingCycle    string   `json:"billingCycle"`
	CustomerName    string   `json:"customerName"`
	BillingAddress  *Address `json:"billingAddress"`
	ShippingAddress *Address `json:"shippingAddress"`
	IPAddress       string   `json:"-"`
	UserAgent       string   `json:"-"`
}

type ChangePlanRequest struct {
	TierID       string `json:"tierId" binding:"required"`
	BillingCycle string `json:"billingCycle" binding:"required,oneof=MONTHLY YEARLY"`
	IPAddress    string `json:"-"`
	UserAgent    string `json:"-"`
}

type TierSummary struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type LimitsView struct {
	MaxStorageGB int  `json:"maxStorageGB"`
	MaxAPICalls  *int `json:"maxApiCalls"`
	MaxProjects  *int `json:"maxProjects"`
	MaxUsers     *int `json:"maxUsers"`
}

type CheckoutSubscription struct {
	ID           string       `json:"id"`
	Status       Status       `json:"status"`
	Tier         TierSummary  `json:"tier"`
	BillingCycle BillingCycle `json:"billingCycle"`
	StartDate    time.Time    `json:"startDate"`
	RenewalDate  time.Time    `json:"renewalDate"`
	Features     []string     `json:"features"`
	Limits       LimitsView   `json:"limits"`
}

type CheckoutInvoice struct {
	ID            string    `json:"id"`
	InvoiceNumber string    `json:"invoiceNumber"`
	Amount        float64   `json:"amount"`
	DueDate       time.Time `json:"dueDate"`
}

type CheckoutResponse struct {
	Subscription CheckoutSubscription `json:"subscription"`
	Invoice      CheckoutInvoice      `json:"invoice"`
	Message      string               `json:"message"`
	URL          string               `json:"url"`
}
