// internal/mcp/api.go
package mcp

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagesmith/api/schemas"
)

// callRequest is the body of POST /api/v1/tools/call.
type callRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// callResponse is the uniform envelope of every call. Locally recovered
// faults still come back as status "ok": the result itself carries the
// error code and suggestions, and the transport reports 200.
type callResponse struct {
	Status string              `json:"status"`
	Result *schemas.ToolResult `json:"result,omitempty"`
	Error  *errorBody          `json:"error,omitempty"`
}

type errorBody struct {
	Code        schemas.Code `json:"code"`
	Message     string       `json:"message"`
	Suggestions []string     `json:"suggestions,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]interface{}{
		"tools": s.registry.List(),
	})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(s.logger, w, http.StatusBadRequest, callResponse{
			Status: "error",
			Error: &errorBody{
				Code:    schemas.CodeInvalidArguments,
				Message: "request body is not valid JSON: " + err.Error(),
			},
		})
		return
	}
	if req.Name == "" {
		writeJSON(s.logger, w, http.StatusBadRequest, callResponse{
			Status: "error",
			Error: &errorBody{
				Code:    schemas.CodeInvalidArguments,
				Message: "request requires a tool name",
			},
		})
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]interface{}{}
	}

	result, err := s.registry.Call(r.Context(), req.Name, req.Arguments)
	if err != nil {
		code := schemas.CodeInternal
		message := "tool call failed"
		var suggestions []string
		if te, ok := schemas.AsToolError(err); ok {
			code = te.Code
			message = te.Message
			suggestions = te.Suggestions
		}
		writeJSON(s.logger, w, statusFor(code), callResponse{
			Status: "error",
			Error:  &errorBody{Code: code, Message: message, Suggestions: suggestions},
		})
		return
	}

	writeJSON(s.logger, w, http.StatusOK, callResponse{Status: "ok", Result: result})
}

// statusFor maps hard failure codes onto transport status. Recoverable
// codes never reach here; they ride inside a 200 result.
func statusFor(code schemas.Code) int {
	switch code {
	case schemas.CodeUnavailable:
		return http.StatusServiceUnavailable
	case schemas.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("Failed to write response.", zap.Error(err))
	}
}
