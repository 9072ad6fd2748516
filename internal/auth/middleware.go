package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/utils"
)

type contextKey string

const staffKey contextKey = "staff"

// Middleware rejects requests without a valid staff token and puts the
// staff identity into the request context.
func Middleware(verifier Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			staff, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("AUTH_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithStaff(r.Context(), staff)))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	utils.WriteError(w, apperrors.ErrUnauthorized.Newf("%s", message))
}

func WithStaff(ctx context.Context, staff Staff) context.Context {
	return context.WithValue(ctx, staffKey, staff)
}

// StaffFrom extracts the authenticated staff member in handlers.
func StaffFrom(ctx context.Context) (Staff, bool) {
	staff, ok := ctx.Value(staffKey).(Staff)
	return staff, ok
}

// StaffID is the attribution string for check-ins, "" when unauthenticated.
func StaffID(ctx context.Context) string {
	staff, _ := StaffFrom(ctx)
	return staff.ID
}
