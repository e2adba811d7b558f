package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"
)

var (
	errNoCredentials = errors.New("missing Authorization header")
	errNotBearer     = errors.New("authorization scheme must be Bearer")
	errEmptyKey      = errors.New("missing API key")
	errWrongKey      = errors.New("invalid API key")
)

// keyDigest is the fixed-size form keys are compared in, so the comparison
// does not leak the configured key's length.
type keyDigest [32]byte

func digestKey(key string) keyDigest {
	return blake3.Sum256([]byte(key))
}

// bearerKey returns the token of an "Authorization: Bearer <token>" header.
// The scheme name is case-insensitive.
func bearerKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errEmptyKey
	}
	return token, nil
}

// authenticate checks r against the configured key. An empty configured key
// rejects everything.
func (s *Server) authenticate(r *http.Request) error {
	token, err := bearerKey(r)
	if err != nil {
		return err
	}
	if s.config.APIKey == "" {
		return errWrongKey
	}
	got := digestKey(token)
	if subtle.ConstantTimeCompare(got[:], s.keyDigest[:]) != 1 {
		return errWrongKey
	}
	return nil
}

// authMiddleware guards /events and /messages with the admin bearer key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.authenticate(r); err != nil {
			s.logger.Warn("admin request rejected", "path", r.URL.Path, "remote", r.RemoteAddr, "reason", err.Error())
			w.Header().Set("WWW-Authenticate", `Bearer realm="wxgate"`)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
