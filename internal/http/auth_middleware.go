package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/splax/expensetracker/internal/apperror"
)

type authContextKey string

type authInfo struct {
	UserID string
}

const contextKeyAuth authContextKey = "expensetracker-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, err := r.authenticate(req)
		if err != nil {
			r.writeFailure(w, req, err)
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// authenticate validates the Authorization header and enriches the context.
func (r *Router) authenticate(req *http.Request) (context.Context, error) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		return nil, apperror.Unauthenticated(err)
	}
	userID, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		return nil, err
	}
	return context.WithValue(req.Context(), contextKeyAuth, authInfo{UserID: userID}), nil
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	info, ok := ctx.Value(contextKeyAuth).(authInfo)
	return info, ok && info.UserID != ""
}

// ownerID returns the authenticated user id. Handlers behind requireAuth
// always have one.
func ownerID(req *http.Request) (string, error) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		return "", apperror.Unauthenticated(errors.New("auth context missing"))
	}
	return info.UserID, nil
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
