package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
	"github.com/noah-isme/carnet-api/pkg/response"
)

// WebhookTokenHeader carries the shared secret of the form integration.
const WebhookTokenHeader = "X-Webhook-Token"

// WebhookToken requires the shared secret on ingestion calls. An empty secret disables the check.
func WebhookToken(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(WebhookTokenHeader))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid webhook token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
