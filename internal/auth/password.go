package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"

	"dnshelper/internal/support"
)

const AdminRole = "admin"

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CheckAdminCredentials compares against ADMIN_USERNAME (default "admin") and the
// bcrypt hash in ADMIN_PASSWORD_HASH. Without a hash nobody can log in.
func CheckAdminCredentials(username, password string) bool {
	hash := support.GetEnv("ADMIN_PASSWORD_HASH", "")
	if hash == "" {
		return false
	}
	wantUser := support.GetEnv("ADMIN_USERNAME", "admin")
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passOK := CheckPasswordHash(password, hash)
	return userOK && passOK
}
