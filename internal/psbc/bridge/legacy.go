package bridge

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/pkg/errorx"
	"github.com/debrief/psbc/pkg/logger"
)

// handleBridge is the single POST /bridge endpoint, sniffing which of the
// two concurrent dialects (spec §4.5) a request body uses: the presence
// of "jsonrpc" selects the RPC dialect, otherwise the legacy {command,
// params} dialect is assumed.
func (s *Server) handleBridge(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, legacyErrorBody(errorx.New(errno.InvalidParameter, "cannot read request body", nil)))
		return
	}

	if gjson.GetBytes(body, "jsonrpc").Exists() {
		s.handleRPC(c, body)
		return
	}
	s.handleLegacy(c, body)
}

type legacyRequest struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

type legacyErrorPayload struct {
	Message        string `json:"message"`
	Code           any    `json:"code"`
	AvailablePlots any    `json:"available_plots,omitempty"`
}

func legacyErrorBody(err error) gin.H {
	if appErr, ok := err.(*errorx.Error); ok {
		payload := legacyErrorPayload{Message: appErr.Error(), Code: appErr.Coder.Code()}
		if appErr.Coder.Code() == errno.CodeMultiplePlots {
			payload.Code = "MULTIPLE_PLOTS"
			payload.AvailablePlots = appErr.Data
		}
		return gin.H{"error": payload}
	}
	return gin.H{"error": legacyErrorPayload{Message: err.Error(), Code: errno.CodeInternal}}
}

func (s *Server) handleLegacy(c *gin.Context, body []byte) {
	var req legacyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, legacyErrorBody(errorx.New(errno.InvalidParameter, "malformed request body", nil)))
		return
	}

	op, ok := operations[req.Command]
	if !ok {
		c.JSON(http.StatusNotFound, legacyErrorBody(errorx.New(errno.InvalidParameter, "unknown command "+req.Command, nil)))
		return
	}

	result, err := op(s, c.Request.Context(), req.Params)
	if err != nil {
		logger.WarnX(logModule, "legacy command failed", "command", req.Command, "error", err)
		c.JSON(http.StatusOK, legacyErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
