package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"anpr-pipeline/internal/http/middleware"
	"anpr-pipeline/internal/service"
)

const maxImageBytes = 16 << 20

type Handler struct {
	anprService *service.ANPRService
	log         zerolog.Logger
}

func NewHandler(anprService *service.ANPRService, log zerolog.Logger) *Handler {
	return &Handler{
		anprService: anprService,
		log:         log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	public := r.Group("/api/v1")
	{
		public.POST("/plates/normalize", h.normalizePlate)
	}

	protected := r.Group("/api/v1")
	if authMiddleware != nil {
		protected.Use(authMiddleware)
	}
	{
		protected.POST("/recognitions", h.recognizeImage)
	}
}

type normalizeRequest struct {
	Text string `json:"text"`
}

func (h *Handler) normalizePlate(c *gin.Context) {
	var req normalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	result, err := h.anprService.NormalizeText(req.Text)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

// recognizeImage accepts a multipart "image" field or a raw image body.
func (h *Handler) recognizeImage(c *gin.Context) {
	if claims, ok := middleware.MustClaims(c); ok {
		h.log.Debug().Str("user_id", claims.UserID).Msg("recognition requested")
	}

	data, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	result, err := h.anprService.RecognizeImage(c.Request.Context(), data)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func readImage(c *gin.Context) ([]byte, error) {
	if fh, err := c.FormFile("image"); err == nil {
		if fh.Size > maxImageBytes {
			return nil, errors.New("image is too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, errors.New("image is too large")
	}
	return data, nil
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
