package scopefence

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored in ctx, or the zero
// Identity (anonymous, no provider).
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Identity{}
	}
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// WithConsumer returns a context whose identity names consumer.
// Authentication stages call this once the caller is known.
func WithConsumer(ctx context.Context, consumer string) context.Context {
	id := IdentityFromContext(ctx)
	id.Consumer = consumer
	return WithIdentity(ctx, id)
}

// ContextWithProvider returns a context whose identity is routed to provider.
func ContextWithProvider(ctx context.Context, provider string) context.Context {
	id := IdentityFromContext(ctx)
	id.Provider = provider
	return WithIdentity(ctx, id)
}

// IdentityExtractor reads a consumer id from an HTTP request.
type IdentityExtractor func(*http.Request) (string, error)

// ExtractHeader returns an IdentityExtractor that uses a specific HTTP header.
// Example: ExtractHeader("X-Consumer-ID")
func ExtractHeader(headerName string) IdentityExtractor {
	return func(r *http.Request) (string, error) {
		value := strings.TrimSpace(r.Header.Get(headerName))
		if value == "" {
			return "", fmt.Errorf("%w: header %s not found or empty", ErrKeyExtractionFailed, headerName)
		}
		return value, nil
	}
}

// ExtractBasicAuth returns an IdentityExtractor that uses the basic auth
// user name. The password is not checked here; see middleware.Authenticate.
func ExtractBasicAuth() IdentityExtractor {
	return func(r *http.Request) (string, error) {
		user, _, ok := r.BasicAuth()
		if !ok {
			return "", fmt.Errorf("%w: no basic auth credentials", ErrKeyExtractionFailed)
		}
		if user == "" {
			return "", fmt.Errorf("%w: empty basic auth user", ErrKeyExtractionFailed)
		}
		return user, nil
	}
}

// ExtractBearer returns an IdentityExtractor that uses the Bearer token from
// the Authorization header as the consumer id.
func ExtractBearer() IdentityExtractor {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			return "", fmt.Errorf("%w: Authorization header not found", ErrKeyExtractionFailed)
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return "", fmt.Errorf("%w: invalid Authorization header format", ErrKeyExtractionFailed)
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			return "", fmt.Errorf("%w: empty bearer token", ErrKeyExtractionFailed)
		}
		return token, nil
	}
}

// ExtractComposite returns an IdentityExtractor that tries extractors in order
// and returns the first non-empty id.
//
// Example:
//
//	extractor := ExtractComposite(
//	    ExtractHeader("X-Consumer-ID"),
//	    ExtractBasicAuth(),
//	)
func ExtractComposite(extractors ...IdentityExtractor) IdentityExtractor {
	if len(extractors) == 0 {
		return func(r *http.Request) (string, error) {
			return "", fmt.Errorf("%w: no extractors provided", ErrKeyExtractionFailed)
		}
	}

	return func(r *http.Request) (string, error) {
		var lastErr error
		for _, extractor := range extractors {
			id, err := extractor(r)
			if err == nil && id != "" {
				return id, nil
			}
			lastErr = err
		}
		if lastErr != nil {
			return "", fmt.Errorf("%w: all extractors failed: %v", ErrKeyExtractionFailed, lastErr)
		}
		return "", fmt.Errorf("%w: all extractors returned empty id", ErrKeyExtractionFailed)
	}
}

// ExtractStatic returns an IdentityExtractor that always returns id.
func ExtractStatic(id string) IdentityExtractor {
	return func(r *http.Request) (string, error) {
		if id == "" {
			return "", fmt.Errorf("%w: static id is empty", ErrKeyExtractionFailed)
		}
		return id, nil
	}
}

// ParseIdentityExtractorConfig creates an IdentityExtractor from a
// configuration string.
// Supported formats:
// - "header:X-Consumer-ID" -> ExtractHeader("X-Consumer-ID")
// - "basic" -> ExtractBasicAuth()
// - "bearer" -> ExtractBearer()
// - "static:userA" -> ExtractStatic("userA")
// - "none" or "" -> nil (every request is anonymous)
func ParseIdentityExtractorConfig(config string) (IdentityExtractor, error) {
	parts := strings.SplitN(strings.TrimSpace(config), ":", 2)

	switch parts[0] {
	case "", "none":
		return nil, nil

	case "header":
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("%w: header extractor requires format 'header:HeaderName'", ErrInvalidConfig)
		}
		return ExtractHeader(parts[1]), nil

	case "basic":
		return ExtractBasicAuth(), nil

	case "bearer":
		return ExtractBearer(), nil

	case "static":
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("%w: static extractor requires format 'static:id'", ErrInvalidConfig)
		}
		return ExtractStatic(parts[1]), nil

	default:
		return nil, fmt.Errorf("%w: unknown identity extractor type: %s", ErrInvalidConfig, parts[0])
	}
}
