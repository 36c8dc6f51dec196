package handlers

import (
	"net/http"

	"github.com/upb/academy-hub/services"
	"github.com/upb/academy-hub/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.GetErrorMessage(err)
	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, message)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, message)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, message, details)

	case services.IsExternalError(err):
		logger.Warn("upstream provider error", zap.Error(err))
		writeErr = utils.WriteBadGateway(w, message, details)

	case services.IsUnavailableError(err):
		writeErr = utils.WriteServiceUnavailable(w, message)

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleResultError writes a domain error as a {success:false, message} body.
// Validation errors are 400; everything else is 500 and carries the failure
// message so operators can act on it.
func HandleResultError(w http.ResponseWriter, err error, logger *zap.Logger) int {
	status := http.StatusInternalServerError
	if services.IsValidationError(err) {
		status = http.StatusBadRequest
	} else {
		logger.Error("privileged mutation failed", zap.Error(err))
	}

	if writeErr := utils.WriteResult(w, status, services.GetErrorMessage(err)); writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
	return status
}
