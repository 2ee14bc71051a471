package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"package-registry/auth"
	"package-registry/index"
	"package-registry/orm"
)

// ServiceError is the public-facing error shape. Internal error text never
// leaves the boundary; Message is what the client sees.
type ServiceError struct {
	Status  int
	Message string
	Inner   error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Inner
}

// wrapServiceError converts layer errors into user-facing service errors
// with the right HTTP status.
func wrapServiceError(err error, operation string) *ServiceError {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnauthorized):
		return &ServiceError{
			Status:  http.StatusUnauthorized,
			Message: "Invalid or missing credentials",
			Inner:   err,
		}
	case errors.Is(err, index.ErrDuplicateFile):
		// Duplicate uploads answer 405, matching the upload protocol.
		return &ServiceError{
			Status:  http.StatusMethodNotAllowed,
			Message: "Cannot overwrite an existing version of a package.",
			Inner:   err,
		}
	case errors.Is(err, index.ErrProjectNotFound),
		errors.Is(err, index.ErrVersionNotFound),
		errors.Is(err, index.ErrFileNotFound):
		return &ServiceError{
			Status:  http.StatusNotFound,
			Message: "Not found for " + operation,
			Inner:   err,
		}
	case errors.Is(err, index.ErrInvalidUpload):
		return &ServiceError{
			Status:  http.StatusUnprocessableEntity,
			Message: err.Error(),
			Inner:   err,
		}
	}

	var notFoundErr *orm.NotFoundError
	if errors.As(err, &notFoundErr) {
		return &ServiceError{
			Status:  http.StatusNotFound,
			Message: "Not found for " + operation,
			Inner:   err,
		}
	}

	var conflictErr *orm.ConflictError
	if errors.As(err, &conflictErr) {
		return &ServiceError{
			Status:  http.StatusConflict,
			Message: "Conflict with an existing record for " + operation,
			Inner:   err,
		}
	}

	var badInputErr *orm.BadInputError
	if errors.As(err, &badInputErr) {
		return &ServiceError{
			Status:  http.StatusUnprocessableEntity,
			Message: "Invalid input for " + operation,
			Inner:   err,
		}
	}

	return &ServiceError{
		Status:  http.StatusInternalServerError,
		Message: "Internal server error during " + operation,
		Inner:   err,
	}
}

// Error constructors for policy decisions made in handlers.

func errForbidden(message string) *ServiceError {
	return &ServiceError{Status: http.StatusForbidden, Message: message}
}

func errNotFound(message string) *ServiceError {
	return &ServiceError{Status: http.StatusNotFound, Message: message}
}

func errConflict(message string) *ServiceError {
	return &ServiceError{Status: http.StatusConflict, Message: message}
}

func errValidation(message string) *ServiceError {
	return &ServiceError{Status: http.StatusUnprocessableEntity, Message: message}
}

// abortWithError terminates the request with the structured error body.
// Unauthorized responses carry the Basic challenge header.
func abortWithError(c *gin.Context, err error, operation string) {
	svcErr := wrapServiceError(err, operation)
	if svcErr.Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Basic realm="package-registry"`)
	}
	c.AbortWithStatusJSON(svcErr.Status, gin.H{"detail": svcErr.Message})
}
