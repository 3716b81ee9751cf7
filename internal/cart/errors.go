package cart

import "errors"

var (
	ErrStockExceeded    = errors.New("requested quantity exceeds available stock")
	ErrItemNotFound     = errors.New("item not found in cart")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEmptyCart        = errors.New("cart is empty, nothing to sync")
)
