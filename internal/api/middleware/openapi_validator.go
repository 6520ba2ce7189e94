package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/pkg/logger"
)

// ContractViolation is the error text sent when a handler answers outside the contract.
const ContractViolation = "response does not conform to API contract"

// ValidatorOption tunes the contract validator.
type ValidatorOption func(*validator)

// WithoutResponseValidation only checks requests.
func WithoutResponseValidation() ValidatorOption {
	return func(v *validator) { v.responses = false }
}

type validator struct {
	router    routers.Router
	responses bool
}

// NewOpenAPIValidator checks every request, and by default every response, that
// matches a route of doc. Paths the contract does not describe pass through.
// Failures are answered with the backend envelope {"success":false,"error":...}.
func NewOpenAPIValidator(doc *openapi3.T, opts ...ValidatorOption) (gin.HandlerFunc, error) {
	if doc == nil {
		return nil, errors.New("openapi document is nil")
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build contract router: %w", err)
	}
	v := &validator{router: router, responses: true}
	for _, opt := range opts {
		opt(v)
	}
	return v.handle, nil
}

// MustOpenAPIValidator is NewOpenAPIValidator for static contracts.
func MustOpenAPIValidator(doc *openapi3.T, opts ...ValidatorOption) gin.HandlerFunc {
	mw, err := NewOpenAPIValidator(doc, opts...)
	if err != nil {
		panic(err)
	}
	return mw
}

func (v *validator) handle(c *gin.Context) {
	route, params, err := v.router.FindRoute(c.Request)
	if err != nil {
		if isPathNotFound(err) {
			c.Next()
			return
		}
		rejectRequest(c, err)
		return
	}

	skipAuth := &openapi3filter.Options{
		// Cookie auth is enforced by the JWT middleware.
		AuthenticationFunc: func(context.Context, *openapi3filter.AuthenticationInput) error { return nil },
	}
	input := &openapi3filter.RequestValidationInput{
		Request:    c.Request,
		PathParams: params,
		Route:      route,
		Options:    skipAuth,
	}
	if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
		rejectRequest(c, err)
		return
	}

	if !v.responses {
		c.Next()
		return
	}

	rec := &recordingWriter{ResponseWriter: c.Writer, status: http.StatusOK}
	c.Writer = rec
	c.Next()
	c.Writer = rec.ResponseWriter

	out := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 rec.status,
		Header:                 rec.Header(),
		Options:                skipAuth,
	}
	if rec.body.Len() > 0 {
		out.SetBodyBytes(rec.body.Bytes())
	}
	if err := openapi3filter.ValidateResponse(c.Request.Context(), out); err != nil {
		logger.Error("Handler answered outside the API contract",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", rec.status),
			zap.Error(err),
		)
		rec.replace(http.StatusInternalServerError, gin.H{"success": false, "error": ContractViolation})
	}
	rec.flush()
}

func isPathNotFound(err error) bool {
	if errors.Is(err, routers.ErrPathNotFound) {
		return true
	}
	var routeErr *routers.RouteError
	return errors.As(err, &routeErr) && routeErr.Reason == routers.ErrPathNotFound.Error()
}

func rejectRequest(c *gin.Context, err error) {
	logger.Debug("Request rejected by API contract",
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}

// recordingWriter holds the handler output until it has been validated.
type recordingWriter struct {
	gin.ResponseWriter
	body    bytes.Buffer
	status  int
	written bool
}

func (w *recordingWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
}

func (w *recordingWriter) WriteHeaderNow() { w.written = true }

func (w *recordingWriter) Write(data []byte) (int, error) {
	w.written = true
	return w.body.Write(data)
}

func (w *recordingWriter) WriteString(s string) (int, error) { return w.Write([]byte(s)) }

func (w *recordingWriter) Status() int { return w.status }

func (w *recordingWriter) Size() int { return w.body.Len() }

func (w *recordingWriter) Written() bool { return w.written }

func (w *recordingWriter) replace(status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{"success":false}`)
	}
	w.status = status
	w.body.Reset()
	w.body.Write(data)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
}

func (w *recordingWriter) flush() {
	w.ResponseWriter.WriteHeader(w.status)
	if w.body.Len() > 0 {
		if _, err := w.ResponseWriter.Write(w.body.Bytes()); err != nil {
			logger.Warn("Failed to flush validated response", zap.Error(err))
		}
	}
}
