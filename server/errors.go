package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hackers/pkg/hn"
	"hackers/syncer"
)

// statusFor maps a failure to an HTTP status.
func statusFor(err error) int {
	var e *hn.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case hn.KindNotFound:
			return http.StatusNotFound
		case hn.KindUnauthenticated:
			return http.StatusUnauthorized
		case hn.KindAuthentication:
			if e.Reason == hn.BadCredentials {
				return http.StatusUnauthorized
			}
			return http.StatusBadGateway
		case hn.KindRequestFailure, hn.KindScraper:
			return http.StatusBadGateway
		}
	}
	switch {
	case errors.Is(err, syncer.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, syncer.ErrFeedBusy), errors.Is(err, syncer.ErrFeedDisabled):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes {"error", "kind", "reason"} and logs server-side failures.
func (s *Server) respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var e *hn.Error
	if errors.As(err, &e) {
		body["kind"] = e.Kind
		if e.Reason != "" {
			body["reason"] = e.Reason
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "op", op, "status_code", status, "error", err)
		if status == http.StatusInternalServerError {
			body["error"] = "internal server error"
		}
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// intParam parses a positive integer path parameter.
func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}
