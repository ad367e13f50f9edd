package tools

import "fmt"

// ErrNoSuchTool is carried in a [Result] when a call names a tool that
// is not registered. It is not fatal: the result text goes back into
// the conversation so the model can pick a real tool.
type ErrNoSuchTool struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrNoSuchTool) Error() string {
	return fmt.Sprintf("no such tool: %s", e.ToolName)
}
