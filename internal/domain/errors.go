package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

var (
	ErrItemNotFound  = fmt.Errorf("item %w", ErrNotFound)
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	ErrLineNotFound  = fmt.Errorf("cart line %w", ErrNotFound)

	ErrInvalidQuantity    = errors.New("quantity out of range")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrAlreadyTerminal    = errors.New("order already delivered or cancelled")
	ErrNoIngredientsFound = errors.New("no ingredients found")
	ErrPersistence        = errors.New("persistence failure")
)
