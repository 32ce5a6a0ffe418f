package handler

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"findost/internal/usecase"
)

type lambdaRoute struct {
	method string
	ep     endpoint
}

func (h *Handler) lambdaRoutes() map[string]lambdaRoute {
	return map[string]lambdaRoute{
		"/healthz":             {http.MethodGet, h.health},
		"/chat":                {http.MethodPost, h.chat},
		"/insights":            {http.MethodPost, h.insights},
		"/onboarding/validate": {http.MethodPost, h.validateOnboarding},
	}
}

// Handle serves API Gateway proxy events with the same endpoints as Routes.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	start := time.Now()
	id := h.correlationID(headerValue(req.Headers, correlationHeader))
	ctx = withCorrelationID(ctx, id)

	headers := map[string]string{
		"Content-Type":    "application/json",
		correlationHeader: id,
	}
	if origin := h.corsOrigin(headerValue(req.Headers, "Origin")); origin != "" {
		headers["Access-Control-Allow-Origin"] = origin
		headers["Access-Control-Expose-Headers"] = correlationHeader
	}

	path := normalizePath(req.Path)
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic in lambda handler",
				zap.String("correlation_id", id),
				zap.Any("panic", rec))
			resp = events.APIGatewayProxyResponse{
				StatusCode: http.StatusInternalServerError,
				Headers:    headers,
				Body:       string(marshalPayload(errorResponse{Error: msgFailed, Code: string(usecase.ErrorInternal), Details: fmt.Sprint(rec)})),
			}
			err = nil
		}
		h.logger.Info("request",
			zap.String("method", req.HTTPMethod),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("correlation_id", id))
	}()

	if req.HTTPMethod == http.MethodOptions {
		headers["Access-Control-Allow-Methods"] = "GET, POST, OPTIONS"
		headers["Access-Control-Allow-Headers"] = "Accept, Authorization, Content-Type, " + correlationHeader
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent, Headers: headers}, nil
	}

	status, payload := h.dispatch(ctx, req, path)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(marshalPayload(payload)),
	}, nil
}

func (h *Handler) dispatch(ctx context.Context, req events.APIGatewayProxyRequest, path string) (int, any) {
	route, ok := h.lambdaRoutes()[path]
	if !ok {
		return notFound()
	}
	if !strings.EqualFold(req.HTTPMethod, route.method) {
		return methodNotAllowed()
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return invalidBody()
		}
		body = decoded
	}
	if int64(len(body)) > h.bodyLimit {
		return bodyTooLarge()
	}
	return route.ep(ctx, body)
}

// corsOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is not allowed.
func (h *Handler) corsOrigin(origin string) string {
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// headerValue looks a header up case-insensitively; API Gateway passes
// headers through with whatever casing the client used.
func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func normalizePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
