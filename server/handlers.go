package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/mrsingh-rishi/voice-bot/call"
)

type callRequest struct {
	To string `json:"to"`
}

type callResponse struct {
	SID     string `json:"sid,omitempty"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleCall(c *fiber.Ctx) error {
	var req callRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.To == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`to` field is required"})
	}

	sid, err := s.caller.PlaceCall(req.To)
	if err != nil {
		s.logger.Error("Twilio error", "to", req.To, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create call"})
	}

	s.logger.Info("Outbound call initiated", "to", req.To, "call_sid", sid)
	return c.JSON(callResponse{SID: sid, Message: "call initiated"})
}

// handleTwiML returns the document instructing Twilio to stream the call audio
// to /stream.
func (s *Server) handleTwiML(c *fiber.Ctx) error {
	if s.validator != nil && !s.validSignature(c) {
		s.logger.Warn("Rejected TwiML request with bad signature", "ip", c.IP())
		return c.SendStatus(fiber.StatusForbidden)
	}

	xml, err := streamTwiML(s.config.Server.BaseWSURL, s.config.Twilio.Greeting)
	if err != nil {
		s.logger.Error("Failed to build TwiML", "error", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	c.Type("xml")
	return c.SendString(xml)
}

// validSignature checks X-Twilio-Signature against the public URL Twilio
// requested, which is BaseURL rather than the address fiber sees behind a proxy.
func (s *Server) validSignature(c *fiber.Ctx) bool {
	url := s.config.Server.BaseURL + "twiml"
	if query := c.Request().URI().QueryString(); len(query) > 0 {
		url += "?" + string(query)
	}

	params := map[string]string{}
	if c.Method() == fiber.MethodPost {
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			params[string(key)] = string(value)
		})
	}
	return s.validator.Validate(url, params, c.Get("X-Twilio-Signature"))
}

// handleStream serves one Twilio media stream for the lifetime of the call.
func (s *Server) handleStream(ws *websocket.Conn) {
	s.logger.Info("WebSocket /stream connected", "call_sid", ws.Query("CallSid"))

	cs, err := call.NewCallSession(context.Background(), ws, s.deps, s.logger, s.metrics)
	if err != nil {
		s.logger.Error("Failed to create call session", "error", err)
		ws.Close()
		return
	}

	s.registry.Add(cs)
	defer s.registry.Remove(cs.ID)
	cs.Run()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(healthResponse{Status: "ok", Sessions: s.registry.Len()})
}
