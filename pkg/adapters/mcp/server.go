// Package mcp exposes the arbiter engine to LLM hosts over the Model
// Context Protocol. An agent playing the arbiter role can submit actions,
// answer roll requests and rule on held actions through the tools below.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/arbiter"
	"github.com/aretw0/arbiter/pkg/domain"
)

// StatusResponse aligns with the OpenAPI SessionStatus schema so agents see
// the same shape over MCP and HTTP.
type StatusResponse struct {
	SessionID    string               `json:"session_id" jsonschema_description:"Session identifier"`
	Liveness     domain.LivenessPhase `json:"liveness" jsonschema_description:"Arbiter connection phase"`
	QueueDepth   int                  `json:"queue_depth" jsonschema_description:"Actions buffered during the outage"`
	PendingRolls int                  `json:"pending_rolls" jsonschema_description:"Correlated roll requests still open"`
}

// Server wraps the arbiter Engine and exposes it as an MCP Server.
type Server struct {
	engine    *arbiter.Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(engine *arbiter.Engine, logger *slog.Logger) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("arbiter-mcp", arbiter.Version),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	// TOOL: submit_action
	submitTool := mcp.NewTool("submit_action",
		mcp.WithDescription("Submit a proposed action to a session. The engine classifies it and runs, holds or queues it."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session ID")),
		mcp.WithString("proposer_id", mcp.Required(), mcp.Description("Participant proposing the action")),
		mcp.WithString("action_type", mcp.Required(), mcp.Description("Registered action type, e.g. 'attack'")),
		mcp.WithString("payload", mcp.Description("JSON object with the action payload (optional)")),
		mcp.WithOutputSchema[domain.Ack](),
	)
	s.mcpServer.AddTool(submitTool, mcp.NewStructuredToolHandler(s.handleSubmit))

	// TOOL: resolve_roll
	rollTool := mcp.NewTool("resolve_roll",
		mcp.WithDescription("Answer an outstanding roll request by correlation ID."),
		mcp.WithString("correlation_id", mcp.Required(), mcp.Description("Correlation ID from the roll request")),
		mcp.WithNumber("total", mcp.Required(), mcp.Description("Final roll total including modifiers")),
		mcp.WithString("values", mcp.Description("JSON array of individual die values (optional)")),
	)
	s.mcpServer.AddTool(rollTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := domain.RollResult{
			CorrelationID: request.GetString("correlation_id", ""),
			Total:         request.GetInt("total", 0),
		}
		if raw := request.GetString("values", ""); raw != "" {
			_ = json.Unmarshal([]byte(raw), &result.Values)
		}
		if err := s.engine.ResolveRoll(ctx, result.CorrelationID, result); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("resolve failed: %v", err)), nil
		}
		return mcp.NewToolResultText("roll accepted"), nil
	})

	// TOOL: submit_decision
	decisionTool := mcp.NewTool("submit_decision",
		mcp.WithDescription("Rule on a held action: accept, modify (with a replacement payload) or reject."),
		mcp.WithString("action_id", mcp.Required(), mcp.Description("ID of the held action")),
		mcp.WithString("verdict", mcp.Required(), mcp.Enum("accept", "modify", "reject"), mcp.Description("Ruling")),
		mcp.WithString("payload", mcp.Description("JSON replacement payload (modify only)")),
		mcp.WithString("reason", mcp.Description("Explanation shown to the proposer (reject only)")),
	)
	s.mcpServer.AddTool(decisionTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decision := domain.Decision{
			ActionID: request.GetString("action_id", ""),
			Verdict:  domain.DecisionVerdict(request.GetString("verdict", "")),
			Reason:   request.GetString("reason", ""),
		}
		if raw := request.GetString("payload", ""); raw != "" {
			if err := json.Unmarshal([]byte(raw), &decision.Payload); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid payload: %v", err)), nil
			}
		}
		if err := s.engine.SubmitDecision(ctx, decision.ActionID, decision); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("decision failed: %v", err)), nil
		}
		return mcp.NewToolResultText("decision delivered"), nil
	})

	// TOOL: heartbeat
	s.mcpServer.AddTool(mcp.NewTool("heartbeat",
		mcp.WithDescription("Signal that the arbiter is alive. Resumes a paused session and drains its queue."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session ID")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := s.engine.HeartbeatPong(request.GetString("session_id", ""), time.Now()); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("heartbeat failed: %v", err)), nil
		}
		return mcp.NewToolResultText("pong recorded"), nil
	})

	// TOOL: session_status
	statusTool := mcp.NewTool("session_status",
		mcp.WithDescription("Get liveness, queue depth and pending rolls for a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session ID")),
		mcp.WithOutputSchema[StatusResponse](),
	)
	s.mcpServer.AddTool(statusTool, mcp.NewStructuredToolHandler(s.handleStatus))
}

// Handler methods for structured tools

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Ack, error) {
	sessionID, _ := args["session_id"].(string)
	proposerID, _ := args["proposer_id"].(string)
	actionType, _ := args["action_type"].(string)
	req := domain.ActionRequest{
		SessionID:  sessionID,
		ProposerID: proposerID,
		ActionType: actionType,
	}
	if raw, ok := args["payload"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Payload); err != nil {
			return domain.Ack{}, fmt.Errorf("invalid payload: %w", err)
		}
	}

	ack, err := s.engine.Submit(ctx, req)
	if err != nil {
		// A rejected Ack still carries the reason; surface it alongside.
		return ack, fmt.Errorf("submit failed: %w", err)
	}
	return ack, nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	sessionID, _ := args["session_id"].(string)
	sess, err := s.engine.Manager().Get(sessionID)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("status failed: %w", err)
	}
	return StatusResponse{
		SessionID:    sessionID,
		Liveness:     sess.Liveness().Phase,
		QueueDepth:   sess.QueueDepth(),
		PendingRolls: sess.PendingRolls(),
	}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: arbiter://workflows
	s.mcpServer.AddResource(mcp.NewResource("arbiter://workflows", "Registered Action Types",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, _ := json.Marshal(s.engine.Registry().Types())
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "arbiter://workflows",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
