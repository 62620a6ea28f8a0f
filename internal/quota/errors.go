package quota

import "errors"

var (
	// ErrInsufficientBalance indicates the category balance is exhausted.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnknownCategory indicates an unrecognized quota category.
	ErrUnknownCategory = errors.New("unknown quota category")
)
