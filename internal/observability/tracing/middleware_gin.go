package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/tenantbill/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const attrPrefix = "tenantbill."

// GinMiddleware opens a server span per request. The span is renamed to
// the route once it is known and tagged with the billed team, the actor and
// the subscription, invoice or plan the request targets.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("tenantbill/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName(c.Request.Method + " " + route)
		span.SetAttributes(SafeAttributes(requestAttributes(c, route, status)...)...)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func requestAttributes(c *gin.Context, route string, status int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	}

	// The actor middleware runs after this one and replaces the request
	// context, so read team and actor from the final request.
	ctx := c.Request.Context()
	if teamID := obscontext.TeamIDFromContext(ctx); teamID != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"team_id", teamID))
	}
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType != "" {
		attrs = append(attrs,
			attribute.String(attrPrefix+"actor_type", actorType),
			attribute.String(attrPrefix+"actor_id", actorID),
		)
	}

	key, op := obscontext.RouteResource(c.Request.Method, route)
	if op != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"operation", op))
	}
	if id := strings.TrimSpace(c.Param("id")); key != "" && id != "" {
		attrs = append(attrs, attribute.String(attrPrefix+key, id))
	}
	return attrs
}
