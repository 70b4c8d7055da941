package context

import "context"

type contextKey string

const (
	requestIDKey    contextKey = "observability_request_id"
	customerCodeKey contextKey = "observability_customer_code"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithCustomerCode tags ctx with the customer a request acts for. The value
// is only used for log correlation.
func WithCustomerCode(ctx context.Context, customerCode string) context.Context {
	if ctx == nil || customerCode == "" {
		return ctx
	}
	return context.WithValue(ctx, customerCodeKey, customerCode)
}

func CustomerCodeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(customerCodeKey).(string)
	return value
}
