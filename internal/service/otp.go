package service

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/Payphone-Digital/auth-service/internal/constants"
)

var otpSpace = big.NewInt(1_000_000)

// GenerateOTP returns a uniformly random zero-padded 6 digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", constants.OTPLength, n.Int64()), nil
}
