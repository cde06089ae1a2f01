// internal/domain/tier/dto.go
package tier

type CreateTierRequest struct {
	Name         string   `json:"name" binding:"required,max=100"`
	Description  string   `json:"description"`
	PriceMonthly float64  `json:"priceMonthly" binding:"min=0"`
	PriceYearly  *float64 `json:"priceYearly" binding:"omitempty,min=0"`
	Features     []string `json:"features"`
	MaxUsers     *int     `json:"maxUsers" binding:"omitempty,min=0"`
	MaxProjects  *int     `json:"maxProjects" binding:"omitempty,min=0"`
	MaxAPICalls  *int     `json:"maxApiCalls" binding:"omitempty,min=0"`
	MaxStorageGB int      `json:"maxStorageGB" binding:"min=0"`
	SortOrder    int      `json:"sortOrder"`
	IPAddress    string   `json:"-"`
	UserAgent    string   `json:"-"`
}

// UpdateTierRequest leaves nil fields unchanged.
type UpdateTierRequest struct {
	Name         *string  `json:"name" binding:"omitempty,max=100"`
	Description  *string  `json:"description"`
	PriceMonthly *float64 `json:"priceMonthly" binding:"omitempty,min=0"`
	PriceYearly  *float64 `json:"priceYearly" binding:"omitempty,min=0"`
	Features     []string `json:"features"`
	MaxUsers     *int     `json:"maxUsers" binding:"omitempty,min=0"`
	MaxProjects  *int     `json:"maxProjects" binding:"omitempty,min=0"`
	MaxAPICalls  *int     `json:"maxApiCalls" binding:"omitempty,min=0"`
	MaxStorageGB *int     `json:"maxStorageGB" binding:"omitempty,min=0"`
	SortOrder    *int     `json:"sortOrder"`
	IPAddress    string   `json:"-"`
	UserAgent    string   `json:"-"`
}

type SetStatusRequest struct {
	IsActive  *bool  `json:"isActive" binding:"required"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}
