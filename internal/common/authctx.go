package common

import "context"

type ctxKey string

const adminSubjectKey ctxKey = "auth/admin-subject"

// WithAdminSubject stores the authenticated operator on ctx.
func WithAdminSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, adminSubjectKey, subject)
}

// AdminSubject returns the operator stored by WithAdminSubject.
func AdminSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(adminSubjectKey).(string)
	return subject, ok && subject != ""
}
