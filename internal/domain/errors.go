package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotConnected        = errors.New("wallet not connected")
	ErrInsufficientFunds   = errors.New("insufficient wallet balance")
	ErrInsufficientHolding = errors.New("insufficient holding")
	ErrContingency         = errors.New("contingency mode active")
	ErrClosed              = errors.New("closed")
	ErrLockHeld            = errors.New("lock held by another process")

	ErrUnsupportedFile = errors.New("invalid file type: please upload a .csv file")
	ErrNoDataRows      = errors.New("csv file is empty or has no data rows")
	ErrNoISINColumn    = errors.New("csv file must contain an ISIN column")
	ErrNoValidBonds    = errors.New("no valid bond data found in the file")
)
