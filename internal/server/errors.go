package server

import (
	"errors"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/msgstore/pkg/apierror"
)

// kindInternal labels failures that are not the caller's fault.
const kindInternal apierror.Kind = "Internal"

const errorDomain = "msgstore"

// httpStatus maps an error to its HTTP status and error kind.
func httpStatus(err error) (int, apierror.Kind) {
	kind, ok := apierror.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, kindInternal
	}
	if kind == apierror.NotFound {
		return http.StatusNotFound, kind
	}
	return http.StatusBadRequest, kind
}

// grpcError converts err into a gRPC status error. Caller errors carry an
// ErrorInfo detail whose reason is the error kind.
func grpcError(err error) error {
	var e *apierror.Error
	if !errors.As(err, &e) {
		return status.Error(codes.Internal, "internal error")
	}

	code := codes.InvalidArgument
	if e.Kind == apierror.NotFound {
		code = codes.NotFound
	}

	st := status.New(code, e.Error())
	info := &errdetails.ErrorInfo{Reason: string(e.Kind), Domain: errorDomain}
	if e.Field != "" {
		info.Metadata = map[string]string{"field": e.Field, "value": e.Value}
	}
	if detailed, derr := st.WithDetails(info); derr == nil {
		st = detailed
	}
	return st.Err()
}
