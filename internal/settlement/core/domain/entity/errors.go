package entity

import "errors"

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrNotOrderOwner         = errors.New("order does not belong to caller")
	ErrNotEscrowOrder        = errors.New("order is not an escrow order")
	ErrNoPaymentPlan         = errors.New("order has no payment plan")
	ErrInstallmentNotFound   = errors.New("installment index out of range")
	ErrPaymentNotSuccessful  = errors.New("payment was not successful")
	ErrWrongCurrency         = errors.New("payment currency does not match")
	ErrInstallmentAmount     = errors.New("paid amount does not match installment amount")
	ErrVerificationMismatch  = errors.New("payment details do not match order")
	ErrReferenceRequired     = errors.New("payment reference is required")
	ErrTransactionIDRequired = errors.New("transaction id is required for this provider")
)
