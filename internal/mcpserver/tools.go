// Package mcpserver registers the demo tools on an MCP server.
// The tools are pure functions with no interesting state; everything
// worth guarding lives in the auth layer in front of them.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools adds the echo, calculate, and get_server_time tools.
func RegisterTools(server *mcp.Server, clock clockwork.Clock) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echo a message back to the caller.",
	}, echoHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name:        "calculate",
		Description: "Perform basic arithmetic: add, subtract, multiply, or divide two numbers.",
	}, calculateHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_server_time",
		Description: "Get the current server time in RFC 3339 format, optionally in a specific IANA timezone.",
	}, serverTimeHandler(clock))
}

// --- Input and output types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// EchoInput holds parameters for echo.
type EchoInput struct {
	Message string `json:"message" jsonschema:"required,message to echo back"`
}

// EchoResult is the echo tool output.
type EchoResult struct {
	Message string `json:"message"`
}

// CalculateInput holds parameters for calculate.
type CalculateInput struct {
	Operation string  `json:"operation" jsonschema:"required,one of add subtract multiply divide"`
	X         float64 `json:"x" jsonschema:"required,first operand"`
	Y         float64 `json:"y" jsonschema:"required,second operand"`
}

// CalculateResult is the calculate tool output.
type CalculateResult struct {
	Operation string  `json:"operation"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Result    float64 `json:"result"`
}

// ServerTimeInput holds parameters for get_server_time.
type ServerTimeInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA timezone name, defaults to UTC"`
}

// ServerTimeResult is the get_server_time tool output.
type ServerTimeResult struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

// --- Handlers ---

func echoHandler() mcp.ToolHandlerFor[EchoInput, *EchoResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input EchoInput) (*mcp.CallToolResult, *EchoResult, error) {
		result := &EchoResult{Message: input.Message}
		return textResult(result), result, nil
	}
}

func calculateHandler() mcp.ToolHandlerFor[CalculateInput, *CalculateResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input CalculateInput) (*mcp.CallToolResult, *CalculateResult, error) {
		result, err := Calculate(input.Operation, input.X, input.Y)
		if err != nil {
			return nil, nil, err
		}
		return textResult(result), result, nil
	}
}

func serverTimeHandler(clock clockwork.Clock) mcp.ToolHandlerFor[ServerTimeInput, *ServerTimeResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ServerTimeInput) (*mcp.CallToolResult, *ServerTimeResult, error) {
		result, err := ServerTime(clock, input.Timezone)
		if err != nil {
			return nil, nil, err
		}
		return textResult(result), result, nil
	}
}

// Calculate applies a basic arithmetic operation. Division by zero and
// unknown operations are ordinary errors for the tool transport to report.
func Calculate(operation string, x, y float64) (*CalculateResult, error) {
	var result float64

	switch operation {
	case "add":
		result = x + y
	case "subtract":
		result = x - y
	case "multiply":
		result = x * y
	case "divide":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		result = x / y
	default:
		return nil, fmt.Errorf("unknown operation %q: must be add, subtract, multiply, or divide", operation)
	}

	return &CalculateResult{Operation: operation, X: x, Y: y, Result: result}, nil
}

// ServerTime reports the current time, optionally converted to an IANA
// timezone. An empty timezone means UTC.
func ServerTime(clock clockwork.Clock, timezone string) (*ServerTimeResult, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q", timezone)
		}
	}

	now := clock.Now().In(loc)

	return &ServerTimeResult{
		Time:     now.Format(time.RFC3339),
		Timezone: loc.String(),
	}, nil
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%+v", v))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
