package http

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/plexica/plexica-sub002/internal/domain"
)

var statusByCode = map[domain.Code]int{
	domain.CodeValidation:   http.StatusUnprocessableEntity,
	domain.CodeConflict:     http.StatusConflict,
	domain.CodeNotFound:     http.StatusNotFound,
	domain.CodeInvalidState: http.StatusConflict,
	domain.CodeProvisioning: http.StatusBadGateway,
	domain.CodeLastAdmin:    http.StatusConflict,
}

// toHumaError translates domain errors to Huma HTTP errors. The domain code
// is always attached as a "code" detail; tenantID, when known, is attached
// too so a failed provisioning can be inspected.
func toHumaError(err error, tenantID string) error {
	code := domain.ErrorCode(err)
	status, ok := statusByCode[code]
	msg := err.Error()
	if !ok {
		status = http.StatusInternalServerError
		msg = "internal server error"
	}

	details := []error{&huma.ErrorDetail{Location: "code", Value: string(code)}}
	if tenantID != "" && code == domain.CodeProvisioning {
		details = append(details, &huma.ErrorDetail{Location: "tenant_id", Value: tenantID})
	}
	return huma.NewError(status, msg, details...)
}
