package ledger

import "errors"

var (
	ErrItemNotFound          = errors.New("item not found")
	ErrLocationNotFound      = errors.New("location not found")
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrPurchaseOrderNotFound = errors.New("purchase order not found")
	ErrPurchaseOrderReceived = errors.New("purchase order already received")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrInvalidState          = errors.New("invalid state transition")
	ErrShiftAlreadyOpen      = errors.New("shift already open at location")
	ErrShiftNotFound         = errors.New("no open shift at location")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrVersionConflict       = errors.New("item was modified concurrently")
	ErrDuplicate             = errors.New("record already exists")
)
