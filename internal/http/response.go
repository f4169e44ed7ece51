package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flowdesk/internal/apperr"
)

// envelope es la forma de toda respuesta exitosa.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// responder escribe respuestas y traduce errores en un solo lugar.
type responder struct {
	logger       *zap.Logger
	exposeDetail bool
}

func newResponder(logger *zap.Logger, exposeDetail bool) responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return responder{logger: logger, exposeDetail: exposeDetail}
}

func (r responder) ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func (r responder) fail(c *gin.Context, err error) {
	status, body := apperr.Translate(err, r.exposeDetail)
	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, body)
}

// bindFailure convierte un error de binding de gin en ValidationFailed.
func (r responder) bindFailure(c *gin.Context, err error) {
	r.logger.Debug("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	r.fail(c, apperr.FromValidator(err))
}
