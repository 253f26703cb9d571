package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/friendlyhq/friendly/pkg/models"
)

const authCallbackHTML = `<html>
<head><title>Gmail Connected</title></head>
<body style="font-family: Inter, system-ui, sans-serif; display: flex;
              justify-content: center; align-items: center;
              height: 100vh; margin: 0; background: #fafaf5;">
    <div style="text-align: center;">
        <h2 style="margin-bottom: 8px;">Gmail Connected!</h2>
        <p style="color: #666;">You can close this window and ask Friendly to check your inbox again.</p>
        <script>
            if (window.opener) {
                window.opener.postMessage({ type: 'gmail_connected' }, '*');
                setTimeout(function() { window.close(); }, 2000);
            }
        </script>
    </div>
</body>
</html>`

func (s *Server) handleInboxStream(c *gin.Context) {
	s.streamEvents(c, models.AgentInbox, c.Param("session_id"), "")
}

// handleInboxAuthCallback lands the user after the mail provider's OAuth
// consent. Token exchange happens provider-side; we just close the popup.
func (s *Server) handleInboxAuthCallback(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(authCallbackHTML))
}
