package crypto

import "golang.org/x/crypto/bcrypt"

const maxPasswordBytes = 72

// HashPassword hashes plaintext using bcrypt. Every call draws a fresh salt.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// ComparePassword compares plaintext to hashed secret in constant time.
// Inputs bcrypt would silently truncate are rejected.
func ComparePassword(hash []byte, plain string) error {
	if len(plain) > maxPasswordBytes {
		return bcrypt.ErrPasswordTooLong
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}
