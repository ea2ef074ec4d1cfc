// Package payreq owns the payment request entity and its lifecycle:
// requested, completed, reverted, deleted, plus day-level batch
// transitions. Completing or reverting a request writes the matching
// payment date through to the source record inside the same transaction.
package payreq

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates an unknown payment request id.
	ErrNotFound = errors.New("payment request not found")
	// ErrInvalidAmount indicates a non-positive requested amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidPaymentType indicates a payment type that does not apply
	// to the source type.
	ErrInvalidPaymentType = errors.New("payment type does not match source type")
	// ErrDuplicateRequest indicates an active request already exists for
	// the same (source, payment type) key.
	ErrDuplicateRequest = errors.New("an open request already exists for this payment")
	// ErrStateConflict indicates the request is not in the status the
	// operation expects.
	ErrStateConflict = errors.New("request status does not allow this operation")
	// ErrSourceWrite indicates the write-through to the source record
	// failed; the enclosing transaction rolls the request state back.
	ErrSourceWrite = errors.New("source record update failed")
)

// SourceType identifies which kind of record a request settles against.
type SourceType string

const (
	SourcePurchaseOrder SourceType = "PURCHASE_ORDER"
	SourcePackingList   SourceType = "PACKING_LIST"
)

// Valid reports whether the source type is known.
func (s SourceType) Valid() bool {
	switch s {
	case SourcePurchaseOrder, SourcePackingList:
		return true
	}
	return false
}

// PaymentType identifies which installment a request covers.
type PaymentType string

const (
	PaymentAdvance  PaymentType = "ADVANCE"
	PaymentBalance  PaymentType = "BALANCE"
	PaymentShipping PaymentType = "SHIPPING"
)

// Valid reports whether the payment type is known.
func (p PaymentType) Valid() bool {
	switch p {
	case PaymentAdvance, PaymentBalance, PaymentShipping:
		return true
	}
	return false
}

// AppliesTo reports whether the payment type is legal for the source type:
// advance and balance settle purchase orders, shipping settles packing
// lists.
func (p PaymentType) AppliesTo(s SourceType) bool {
	switch p {
	case PaymentAdvance, PaymentBalance:
		return s == SourcePurchaseOrder
	case PaymentShipping:
		return s == SourcePackingList
	}
	return false
}

// RequestStatus is the lifecycle state of a payment request.
type RequestStatus string

const (
	StatusRequested RequestStatus = "REQUESTED"
	StatusCompleted RequestStatus = "COMPLETED"
)

// Valid reports whether the status is known.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusCompleted:
		return true
	}
	return false
}

// PaymentRequest is a request to pay one installment on a source record.
type PaymentRequest struct {
	ID          uuid.UUID
	Number      string
	SourceType  SourceType
	SourceID    int64
	PaymentType PaymentType
	Amount      decimal.Decimal
	Status      RequestStatus
	RequestDate time.Time
	PaymentDate *time.Time
	RequestedBy int64
	CompletedBy *int64
	Memo        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key identifies the (source, payment type) slot a request occupies.
type Key struct {
	SourceType  SourceType
	SourceID    int64
	PaymentType PaymentType
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s", k.SourceType, k.SourceID, k.PaymentType)
}

// Key returns the request's slot key.
func (r PaymentRequest) Key() Key {
	return Key{SourceType: r.SourceType, SourceID: r.SourceID, PaymentType: r.PaymentType}
}

// CreateInput carries the fields needed to open a request.
type CreateInput struct {
	SourceType  SourceType
	SourceID    int64
	PaymentType PaymentType
	Amount      decimal.Decimal
	RequestedBy int64
	Memo        string
	// IdempotencyKey, when set, guards against duplicate submissions of
	// the same create call.
	IdempotencyKey string
}

// ListFilter narrows request listings.
type ListFilter struct {
	Status      RequestStatus
	SourceType  SourceType
	PaymentType PaymentType
	FromDate    *time.Time
	ToDate      *time.Time
	Search      string
	Limit       int
}
