package guard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/authgate/auth"
	"github.com/ggoodman/authgate/internal/logctx"
)

const (
	wwwAuthenticateHeader = "WWW-Authenticate"
	requestIDHeader       = "X-Request-Id"
)

var (
	jsonMediaType  = contenttype.NewMediaType("application/json")
	textMediaType  = contenttype.NewMediaType("text/plain")
	denyMediaTypes = []contenttype.MediaType{jsonMediaType, textMediaType}
)

// Defaults returns middleware that declares policy flags for every route
// below it, such as a router group. Nested Defaults override outer ones.
func (e *Engine) Defaults(flags ...Flags) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := Resolve(policyFrom(r.Context()), flags...)
			next.ServeHTTP(w, r.WithContext(withPolicy(r.Context(), p)))
		})
	}
}

// Authenticate returns middleware that resolves the route's policy (flags
// given here override any Defaults above) and runs the pipeline. Allowed
// requests reach next with the identity, if any, in the context; denied
// requests get a 401 with a Bearer challenge.
func (e *Engine) Authenticate(flags ...Flags) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p := Resolve(policyFrom(ctx), flags...)

			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
				RequestID:  reqID,
				Method:     r.Method,
				UserAgent:  r.UserAgent(),
				RemoteAddr: r.RemoteAddr,
				Path:       r.URL.Path,
			})
			ctx = logctx.WithAuthData(ctx, &logctx.AuthData{Optional: p.Optional, VerifyOnly: p.VerifyOnly})

			d := e.Evaluate(ctx, r.Header, p)
			if !d.Allowed {
				e.writeDenial(w, r, d)
				return
			}
			if d.Identity != nil {
				ctx = auth.WithIdentity(ctx, d.Identity)
			}
			next.ServeHTTP(w, r.WithContext(withPolicy(ctx, p)))
		})
	}
}

func (e *Engine) writeDenial(w http.ResponseWriter, r *http.Request, d Decision) {
	var params map[string]string
	switch {
	case d.Structural && !d.HeaderPresent:
		// RFC 6750 §3.1: no error code when no credentials were sent.
	case d.Structural:
		params = map[string]string{"error": "invalid_request", "error_description": d.Reason.Message()}
	default:
		params = map[string]string{"error": "invalid_token", "error_description": d.Reason.Message()}
	}
	w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(e.realm, e.resourceMetadata, params))

	mt, _, err := contenttype.GetAcceptableMediaType(r, denyMediaTypes)
	if err == nil && mt.Type == textMediaType.Type && mt.Subtype == textMediaType.Subtype {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprintln(w, d.Reason.Message())
		return
	}
	writeJSONError(w, http.StatusUnauthorized, d.Reason)
}

// writeJSONError emits {"error":{"code":<status>,"reason":"...","message":"..."}}.
func writeJSONError(w http.ResponseWriter, status int, reason auth.Reason) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
		"code":    status,
		"reason":  string(reason),
		"message": reason.Message(),
	}})
}

// buildBearerChallenge builds a Bearer challenge header value:
//
//	Bearer realm="<realm>", resource_metadata="<url>", error="...", error_description="..."
//
// Realm and resource_metadata are omitted if empty.
func buildBearerChallenge(realm, resourceMetadata string, params map[string]string) string {
	pieces := make([]string, 0, 2+len(params))
	esc := func(v string) string { return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) }
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if resourceMetadata != "" {
		pieces = append(pieces, fmt.Sprintf(`resource_metadata="%s"`, esc(resourceMetadata)))
	}
	if v, ok := params["error"]; ok {
		pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc(v)))
	}
	if v, ok := params["error_description"]; ok {
		pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(v)))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
