package rest

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ocervell/flash/pkg/apierr"
	"github.com/ocervell/flash/pkg/httputil"
)

// WriteError renders err as a JSON error body. Taxonomy errors keep
// their status code and "Kind: detail" message; anything else is logged
// and collapsed to a generic 500 so internals never leak to clients.
func WriteError(logger *zap.Logger, w http.ResponseWriter, err error) {
	if e, ok := apierr.As(err); ok {
		if e.Code >= http.StatusInternalServerError {
			logger.Error("request failed", zap.String("kind", e.Kind), zap.Error(err))
		}
		httputil.Error(w, e.Code, e.Error())
		return
	}
	logger.Error("request failed", zap.Error(err))
	httputil.Error(w, http.StatusInternalServerError, apierr.Internal(err).Error())
}
