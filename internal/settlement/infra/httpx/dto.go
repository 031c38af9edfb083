package httpx

type SettleRequest struct {
	Reference string `json:"reference"`
}

type SettleResponse struct {
	OK               bool   `json:"ok"`
	OrderID          string `json:"orderId"`
	StorefrontSlug   string `json:"storefrontSlug"`
	EscrowStatus     string `json:"escrowStatus"`
	HoldUntil        string `json:"holdUntil"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
}

type VerifyInstallmentRequest struct {
	Reference     string `json:"reference"`
	TransactionID string `json:"transactionId,omitempty"`
}

type VerifyInstallmentResponse struct {
	OK          bool  `json:"ok"`
	AlreadyPaid bool  `json:"alreadyPaid,omitempty"`
	Completed   bool  `json:"completed"`
	PaidKobo    int64 `json:"paidKobo"`
	TotalKobo   int64 `json:"totalKobo"`
}

type QuoteRequest struct {
	StorefrontSlug  string         `json:"storefrontSlug"`
	Items           []QuoteItemDTO `json:"items"`
	CouponCode      string         `json:"couponCode,omitempty"`
	ShippingFeeKobo int64          `json:"shippingFeeKobo"`
}

type QuoteItemDTO struct {
	ProductID       string            `json:"productId"`
	Qty             int64             `json:"qty"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
}

type OrderResponse struct {
	ID             string          `json:"id"`
	StorefrontSlug string          `json:"storefrontSlug"`
	PaymentType    string          `json:"paymentType"`
	PaymentStatus  string          `json:"paymentStatus"`
	EscrowStatus   string          `json:"escrowStatus"`
	Status         string          `json:"status"`
	TotalKobo      int64           `json:"totalKobo"`
	TotalMajor     string          `json:"totalMajor"`
	HoldUntil      string          `json:"holdUntil"`
	Items          []OrderItemDTO  `json:"items"`
	Plan           *PaymentPlanDTO `json:"plan,omitempty"`
	CreatedAt      string          `json:"createdAt"`
}

type OrderItemDTO struct {
	ProductID     string `json:"productId"`
	Name          string `json:"name"`
	Qty           int64  `json:"qty"`
	BaseUnitKobo  int64  `json:"baseUnitKobo"`
	FinalUnitKobo int64  `json:"finalUnitKobo"`
	LineTotalKobo int64  `json:"lineTotalKobo"`
	SaleApplied   bool   `json:"saleApplied"`
}

type PaymentPlanDTO struct {
	Installments []InstallmentDTO `json:"installments"`
	TotalKobo    int64            `json:"totalKobo"`
	PaidKobo     int64            `json:"paidKobo"`
	Completed    bool             `json:"completed"`
}

type InstallmentDTO struct {
	Index      int    `json:"index"`
	AmountKobo int64  `json:"amountKobo"`
	Status     string `json:"status"`
}

type ErrorResponse struct {
	Error        string `json:"error"`
	Code         string `json:"code,omitempty"`
	ExpectedKobo int64  `json:"expectedKobo,omitempty"`
	PaidKobo     int64  `json:"paidKobo,omitempty"`
}
