package services

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	staffPasswordLen = 10
	symbols          = "!@#$%&*"
	upperLetters     = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerLetters     = "abcdefghijkmnpqrstuvwxyz"
	digits           = "23456789"
)

// GenerateStaffPassword returns a random password with at least one upper case letter, one lower case
// letter, one digit and one symbol. Do not log the returned string.
func GenerateStaffPassword() (string, error) {
	pick := func(s string) (byte, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(s))))
		if err != nil {
			return 0, err
		}
		return s[n.Int64()], nil
	}
	classes := []string{upperLetters, lowerLetters, digits, symbols}
	all := upperLetters + lowerLetters + digits + symbols
	result := make([]byte, staffPasswordLen)
	for i := range result {
		set := all
		if i < len(classes) {
			set = classes[i]
		}
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		result[i] = c
	}
	// Fisher-Yates so the guaranteed classes are not always up front.
	for i := len(result) - 1; i >= 1; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("shuffle: %w", err)
		}
		j := int(n.Int64())
		result[i], result[j] = result[j], result[i]
	}
	return string(result), nil
}

// HashStaffPassword returns the bcrypt hash to put in STAFF_PASSWORD_HASH.
func HashStaffPassword(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
