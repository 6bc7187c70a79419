package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case deadlineOrCanceled(err):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrGenerationFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// mapErrorToMessage picks the user-facing message; internal error text is
// never returned to the caller.
func mapErrorToMessage(err error) domain.MessageKey {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return domain.MessageEmptyQuestion
	case deadlineOrCanceled(err):
		return domain.MessageTemporary
	case domain.IsKind(err, domain.ErrIndexUnavailable):
		return domain.MessageIndexNotReady
	case domain.IsKind(err, domain.ErrTemporary):
		return domain.MessageTemporary
	case domain.IsKind(err, domain.ErrGenerationFailure):
		return domain.MessageGenerationError
	default:
		return domain.MessageInternalError
	}
}

// deadlineOrCanceled catches request timeouts that reach the handler without
// a domain kind, whichever stage they interrupted.
func deadlineOrCanceled(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
