package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
)

// Codes of failures raised by the HTTP layer itself rather than the core.
const (
	apiCodespace = "api"

	codeInternal   uint32 = 1
	codeBadRequest uint32 = 2
	codeNotFound   uint32 = 3
)

type errorResponse struct {
	Code      uint32 `json:"code"`
	Codespace string `json:"codespace"`
	Message   string `json:"message"`
}

// statusOf maps an error kind to its HTTP status. Errors outside the
// registered kinds are internal failures.
func statusOf(err error) (int, errorResponse) {
	kind := coreerrors.KindOf(err)
	if kind == nil {
		return http.StatusInternalServerError, errorResponse{Code: codeInternal, Codespace: apiCodespace, Message: err.Error()}
	}
	resp := errorResponse{Code: kind.ABCICode(), Codespace: kind.Codespace(), Message: err.Error()}
	switch {
	case errors.Is(err, coreerrors.ErrUnknownGuardianSet):
		return http.StatusNotFound, resp
	case errors.Is(err, coreerrors.ErrDigestMismatch),
		errors.Is(err, coreerrors.ErrAlreadyCommitted),
		errors.Is(err, coreerrors.ErrChainAlreadyRegistered),
		errors.Is(err, coreerrors.ErrGuardianSetRotationOrder):
		return http.StatusConflict, resp
	default:
		return http.StatusBadRequest, resp
	}
}

func writeError(c *gin.Context, err error) {
	status, resp := statusOf(err)
	c.JSON(status, resp)
}

func writeAPIError(c *gin.Context, status int, code uint32, message string) {
	c.JSON(status, errorResponse{Code: code, Codespace: apiCodespace, Message: message})
}
