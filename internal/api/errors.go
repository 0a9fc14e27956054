package api

import (
	"errors"
	"net/http"

	"carma/internal/domain"
	"carma/internal/identity"
	"carma/internal/qr"
	"carma/internal/service"
	"carma/internal/wallet"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const msgInternal = "internal error"

var (
	badRequestErrs = []error{
		service.ErrInvalidBooking,
		service.ErrInvalidDates,
		identity.ErrNoWallet,
		wallet.ErrNoAccount,
		wallet.ErrInvalidResponse,
		qr.ErrNoBookingID,
	}
	forbiddenErrs = []error{
		service.ErrNotVerified,
		wallet.ErrAccountMismatch,
	}
	notFoundErrs = []error{
		domain.ErrBookingNotFound,
		domain.ErrSessionNotFound,
		domain.ErrCarNotFound,
		wallet.ErrRequestNotFound,
	}
	conflictErrs = []error{
		domain.ErrDuplicateBooking,
		domain.ErrInvalidTransition,
		service.ErrNotCancellable,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// httpStatus maps a service error to a response status.
func httpStatus(err error) int {
	switch {
	case isAny(err, badRequestErrs):
		return http.StatusBadRequest
	case isAny(err, forbiddenErrs):
		return http.StatusForbidden
	case isAny(err, notFoundErrs):
		return http.StatusNotFound
	case isAny(err, conflictErrs):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func grpcError(err error) error {
	var code codes.Code
	switch {
	case isAny(err, badRequestErrs):
		code = codes.InvalidArgument
	case isAny(err, forbiddenErrs):
		code = codes.PermissionDenied
	case isAny(err, notFoundErrs):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		code = codes.FailedPrecondition
	case isAny(err, conflictErrs):
		code = codes.AlreadyExists
	default:
		return status.Error(codes.Internal, msgInternal)
	}
	return status.Error(code, err.Error())
}
