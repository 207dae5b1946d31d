// auth.go - HTTP Basic authentication for the admin surface.
//
// The credential check is a pluggable collaborator: a single configured
// admin user verified either against a bcrypt hash (preferred) or a
// plaintext password compared in constant time. Nothing else in the server
// knows how credentials are validated.
package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// AuthConfig holds the admin credential configuration.
type AuthConfig struct {
	AdminUser string
	// AdminPassHash is a bcrypt hash of the admin password. When set it
	// takes precedence over AdminPass.
	AdminPassHash string
	// AdminPass is the plaintext password. Demo-grade; prefer the hash.
	AdminPass string
	Realm     string
}

func (a AuthConfig) realm() string {
	if a.Realm == "" {
		return "Admin Area"
	}
	return a.Realm
}

// check validates a credential pair without leaking timing information for
// the plaintext path.
func (a AuthConfig) check(user, pass string) bool {
	if a.AdminUser == "" {
		return false
	}

	uWant := sha256.Sum256([]byte(a.AdminUser))
	uGot := sha256.Sum256([]byte(user))
	userOK := hmac.Equal(uWant[:], uGot[:])

	var passOK bool
	switch {
	case a.AdminPassHash != "":
		passOK = bcrypt.CompareHashAndPassword([]byte(a.AdminPassHash), []byte(pass)) == nil
	case a.AdminPass != "":
		pWant := sha256.Sum256([]byte(a.AdminPass))
		pGot := sha256.Sum256([]byte(pass))
		passOK = hmac.Equal(pWant[:], pGot[:])
	}

	return userOK && passOK
}

// requireAdmin gates a handler behind Basic auth. Missing, malformed, or
// wrong credentials get 401 with a challenge header.
func (a AuthConfig) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+a.realm()+`"`)
			jsonError(w, "Authentication required.", http.StatusUnauthorized)
			return
		}
		if !a.check(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+a.realm()+`"`)
			jsonError(w, "Invalid credentials.", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
