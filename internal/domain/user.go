package domain

import "github.com/shopspring/decimal"

// KYCStatus is the aggregate identity-verification state.
type KYCStatus string

const (
	KYCUnverified KYCStatus = "unverified"
	KYCPending    KYCStatus = "pending"
	KYCVerified   KYCStatus = "verified"
)

// KYCState tracks the user's verification flags.
type KYCState struct {
	Status          KYCStatus `json:"status"`
	AadhaarVerified bool      `json:"aadhaarVerified"`
	PANVerified     bool      `json:"panVerified"`
	BankVerified    bool      `json:"bankVerified"`
}

// MandateStatus is the UPI auto-pay mandate state.
type MandateStatus string

const (
	MandateNone    MandateStatus = "none"
	MandatePending MandateStatus = "pending"
	MandateActive  MandateStatus = "active"
)

// UPIMandateState holds the auto-pay mandate configuration.
type UPIMandateState struct {
	Status    MandateStatus   `json:"status"`
	Threshold decimal.Decimal `json:"threshold"`
	Amount    decimal.Decimal `json:"amount"`
}

// User is the single session user. Balances are INR.
type User struct {
	Connected     bool            `json:"connected"`
	WalletAddress string          `json:"walletAddress"`
	WalletBalance decimal.Decimal `json:"walletBalance"`
	KYC           KYCState        `json:"kyc"`
	UPIMandate    UPIMandateState `json:"upiMandate"`
}

// DefaultUser returns the disconnected user every session starts from.
func DefaultUser() User {
	return User{
		WalletBalance: decimal.Zero,
		KYC:           KYCState{Status: KYCUnverified},
		UPIMandate: UPIMandateState{
			Status:    MandateNone,
			Threshold: decimal.Zero,
			Amount:    decimal.Zero,
		},
	}
}

// Session is the persisted slice of state: the user and their portfolio.
type Session struct {
	User      User               `json:"user"`
	Portfolio []PortfolioHolding `json:"portfolio"`
}
