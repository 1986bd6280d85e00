package dto

type ReverseTransactionRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}
