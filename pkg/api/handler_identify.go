package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cellarist/sommelier/pkg/identify"
	"github.com/cellarist/sommelier/pkg/models"
	"github.com/cellarist/sommelier/pkg/router"
)

func textInput(c *gin.Context, text string) identify.Input {
	return identify.Input{
		Type:      models.InputTypeText,
		Text:      text,
		UserID:    userID(c),
		SessionID: reqID(c),
	}
}

func imageInput(c *gin.Context, image []byte, mimeType, supplementary string) identify.Input {
	return identify.Input{
		Type:              models.InputTypeImage,
		Image:             image,
		MimeType:          mimeType,
		SupplementaryText: supplementary,
		UserID:            userID(c),
		SessionID:         reqID(c),
	}
}

// identifyText handles POST /api/v1/identify/text.
func (s *Server) identifyText(c *gin.Context) {
	var req IdentifyTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "identifyText", "text is required")
		return
	}

	result, err := s.identify.Identify(c.Request.Context(), textInput(c, req.Text))
	if err != nil {
		s.failJSON(c, "identifyText", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// identifyTextStream handles POST /api/v1/identify/text/stream.
func (s *Server) identifyTextStream(c *gin.Context) {
	var req IdentifyTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "identifyTextStream", "text is required")
		return
	}

	ctx, stop := s.canceller.Watch(c.Request.Context(), reqID(c))
	defer stop()

	stream := s.initSSE(c, "identifyTextStream")
	s.identify.IdentifyStreaming(ctx, textInput(c, req.Text), stream.sink)
}

// identifyImage handles POST /api/v1/identify/image.
func (s *Server) identifyImage(c *gin.Context) {
	var req IdentifyImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "identifyImage", "image and mimeType are required")
		return
	}
	image, err := req.decode()
	if err != nil {
		s.badRequest(c, "identifyImage", err.Error())
		return
	}

	result, err := s.identify.Identify(c.Request.Context(),
		imageInput(c, image, req.MimeType, req.SupplementaryText))
	if err != nil {
		s.failJSON(c, "identifyImage", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// identifyImageStream handles POST /api/v1/identify/image/stream.
func (s *Server) identifyImageStream(c *gin.Context) {
	var req IdentifyImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "identifyImageStream", "image and mimeType are required")
		return
	}
	image, err := req.decode()
	if err != nil {
		s.badRequest(c, "identifyImageStream", err.Error())
		return
	}

	ctx, stop := s.canceller.Watch(c.Request.Context(), reqID(c))
	defer stop()

	stream := s.initSSE(c, "identifyImageStream")
	s.identify.IdentifyStreaming(ctx,
		imageInput(c, image, req.MimeType, req.SupplementaryText), stream.sink)
}

// identifyWithOpus handles POST /api/v1/identify/opus: the user-triggered
// premium tier. Never entered automatically.
func (s *Server) identifyWithOpus(c *gin.Context) {
	var req IdentifyWithOpusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "identifyWithOpus", "priorResult and one of text or image are required")
		return
	}

	var input identify.Input
	switch {
	case req.Image != "":
		if req.MimeType == "" {
			s.badRequest(c, "identifyWithOpus", "mimeType is required with image")
			return
		}
		raw, err := base64Decode(req.Image)
		if err != nil {
			s.badRequest(c, "identifyWithOpus", err.Error())
			return
		}
		input = imageInput(c, raw, req.MimeType, "")
	case req.Text != "":
		input = textInput(c, req.Text)
	default:
		s.badRequest(c, "identifyWithOpus", "one of text or image is required")
		return
	}

	result, err := s.identify.IdentifyWithOpus(c.Request.Context(), input,
		req.PriorResult, req.LockedFields, req.EscalationContext)
	if err != nil {
		s.failJSON(c, "identifyWithOpus", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// verifyImage handles POST /api/v1/identify/verify-image: a user-triggered
// second look at a label photo.
func (s *Server) verifyImage(c *gin.Context) {
	var req VerifyImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "verifyImage", "image, mimeType, and priorResult are required")
		return
	}
	image, err := IdentifyImageRequest{Image: req.Image, MimeType: req.MimeType}.decode()
	if err != nil {
		s.badRequest(c, "verifyImage", err.Error())
		return
	}

	result, err := s.identify.VerifyImage(c.Request.Context(),
		imageInput(c, image, req.MimeType, req.SupplementaryText),
		req.PriorResult, req.LockedFields)
	if err != nil {
		s.failJSON(c, "verifyImage", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// clarifyMatch handles POST /api/v1/clarify-match.
func (s *Server) clarifyMatch(c *gin.Context) {
	var req ClarifyMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "clarifyMatch", "type and identified are required")
		return
	}
	switch req.Type {
	case "region", "producer", "wine":
	default:
		s.badRequest(c, "clarifyMatch", "type must be one of region, producer, wine")
		return
	}
	if len(req.Options) == 0 {
		s.badRequest(c, "clarifyMatch", "at least one option required")
		return
	}

	call := router.Call{UserID: userID(c), SessionID: reqID(c)}
	match, confidence, err := s.identify.ClarifyMatch(c.Request.Context(), call,
		req.Type, req.Identified, req.Options)
	if err != nil {
		s.failJSON(c, "clarifyMatch", err)
		return
	}

	payload := gin.H{"confidence": confidence}
	if match == "" {
		payload["match"] = nil
	} else {
		payload["match"] = match
	}
	c.JSON(http.StatusOK, payload)
}
