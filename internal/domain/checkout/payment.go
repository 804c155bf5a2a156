package checkout

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrInvalidCardNumber = errors.New("checkout: card number must be 16 digits")
	ErrInvalidCardName   = errors.New("checkout: cardholder name is required")
	ErrInvalidCardExpiry = errors.New("checkout: card expiry is invalid")
	ErrInvalidCardCVV    = errors.New("checkout: cvv must be 3 digits")
)

// Card holds the pay-now card fields. The card is never charged by this
// client; the fields are validated locally and processing is delegated.
type Card struct {
	Number      string
	HolderName  string
	ExpiryMonth string
	ExpiryYear  string
	CVV         string
}

// Validate checks the card fields: a 16-digit number after stripping
// spaces, a non-empty holder name, a plausible month/year and a 3-digit
// CVV.
func (c Card) Validate() error {
	number := strings.ReplaceAll(c.Number, " ", "")
	if len(number) != 16 || !allDigits(number) {
		return ErrInvalidCardNumber
	}

	if strings.TrimSpace(c.HolderName) == "" {
		return ErrInvalidCardName
	}

	month, err := strconv.Atoi(strings.TrimSpace(c.ExpiryMonth))
	if err != nil || month < 1 || month > 12 {
		return ErrInvalidCardExpiry
	}
	year := strings.TrimSpace(c.ExpiryYear)
	if (len(year) != 2 && len(year) != 4) || !allDigits(year) {
		return ErrInvalidCardExpiry
	}

	if len(c.CVV) != 3 || !allDigits(c.CVV) {
		return ErrInvalidCardCVV
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
