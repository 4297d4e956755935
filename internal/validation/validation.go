package validation

import (
	"errors"
	"regexp"

	"pingpay/internal/token"
)

var (
	addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	txHashRegex  = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	handleRegex  = regexp.MustCompile(`^@?\w{1,32}$`)
)

// ValidateAddress validates an EVM address format
func ValidateAddress(address string) error {
	if address == "" {
		return errors.New("address cannot be empty")
	}
	if !addressRegex.MatchString(address) {
		return errors.New("invalid address format")
	}
	return nil
}

// ValidateTxHash validates transaction hash format
func ValidateTxHash(txHash string) error {
	if txHash == "" {
		return errors.New("transaction hash cannot be empty")
	}
	if !txHashRegex.MatchString(txHash) {
		return errors.New("invalid transaction hash format")
	}
	return nil
}

// ValidateHandle validates a chat handle before normalization
func ValidateHandle(handle string) error {
	if handle == "" {
		return errors.New("handle cannot be empty")
	}
	if !handleRegex.MatchString(handle) {
		return errors.New("invalid handle format")
	}
	return nil
}

// ValidateAmount validates a decimal amount string: positive, exact
// at token precision, and within a sane upper bound.
func ValidateAmount(amount string) error {
	v, err := token.ParseAmount(amount)
	if err != nil {
		return err
	}
	if v.Sign() <= 0 {
		return errors.New("amount must be positive")
	}
	max, _ := token.ParseAmount("1000000000")
	if v.Cmp(max) > 0 {
		return errors.New("amount exceeds maximum allowed value")
	}
	return nil
}
