package diagnoses

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"leafdoc-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the lifecycle controller.
type Handler struct {
	Ctrl *Controller
}

// NewHandler constructs a Handler.
func NewHandler(ctrl *Controller) *Handler {
	return &Handler{Ctrl: ctrl}
}

// RegisterRoutes attaches the diagnosis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/state", h.getState)
	rg.GET("/history", h.listHistory)
	rg.POST("/image", h.selectImage)
	rg.POST("/analyze", h.runAnalysis)
	rg.POST("/clear", h.clear)
	rg.POST("/history/:id/select", h.selectFromHistory)
	rg.PUT("/language", h.setLanguage)
}

func (h *Handler) getState(c *gin.Context) {
	respond.OK(c, h.Ctrl.State())
}

func (h *Handler) listHistory(c *gin.Context) {
	respond.OK(c, h.Ctrl.History())
}

type selectImageRequest struct {
	MimeType    string `json:"mimeType"`
	Base64Data  string `json:"base64Data"`
	ImageSource string `json:"imageSource"`
}

func (h *Handler) selectImage(c *gin.Context) {
	var req selectImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	img := ImagePayload{MimeType: req.MimeType, Base64Data: req.Base64Data}
	if strings.TrimSpace(req.ImageSource) != "" {
		parsed, err := ParseImageSource(req.ImageSource)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
			return
		}
		img = parsed
	}

	if err := h.Ctrl.SelectImage(img); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	respond.OK(c, h.Ctrl.State())
}

func (h *Handler) runAnalysis(c *gin.Context) {
	result, err := h.Ctrl.RunAnalysis(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, ErrBusy):
			respond.Error(c, http.StatusConflict, "busy", "an analysis is already in progress", nil)
		case errors.Is(err, ErrNoPendingImage):
			respond.Error(c, http.StatusBadRequest, "validation_error", "select an image before analyzing", nil)
		default:
			respond.Error(c, http.StatusBadGateway, "diagnosis_failed", err.Error(), nil)
		}
		return
	}

	c.Set("resultId", result.ID)
	c.Set("language", result.Language)
	respond.JSON(c, http.StatusCreated, result)
}

func (h *Handler) clear(c *gin.Context) {
	h.Ctrl.Clear()
	respond.OK(c, h.Ctrl.State())
}

func (h *Handler) selectFromHistory(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "record id is required", nil)
		return
	}

	result, err := h.Ctrl.SelectFromHistory(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "history record not found", nil)
		case errors.Is(err, ErrBadImagePayload):
			respond.Error(c, http.StatusUnprocessableEntity, "parse_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusBadGateway, "diagnosis_failed", err.Error(), nil)
		}
		return
	}

	c.Set("resultId", result.ID)
	respond.OK(c, h.Ctrl.State())
}

type setLanguageRequest struct {
	Language string `json:"language"`
}

func (h *Handler) setLanguage(c *gin.Context) {
	var req setLanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	language := strings.TrimSpace(req.Language)
	if language == "" || len(language) > 16 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "language code is required", nil)
		return
	}

	c.Set("language", language)
	if err := h.Ctrl.SetLanguage(c.Request.Context(), language); err != nil {
		switch {
		case errors.Is(err, ErrBadImagePayload):
			respond.Error(c, http.StatusUnprocessableEntity, "parse_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusBadGateway, "diagnosis_failed", err.Error(), nil)
		}
		return
	}

	respond.OK(c, h.Ctrl.State())
}
