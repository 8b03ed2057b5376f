package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/response"
)

// fail writes the response for a domain error. Errors without a mapping are
// logged since the client only sees INTERNAL_ERROR.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	status, code := response.FromError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
