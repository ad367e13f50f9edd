// Package prompts holds the text sent to models by minimcp.
//
// Prompt text is Go code rather than config because it is program
// logic: the tag syntax it teaches must match what the agent's detector
// recognizes, and tests pin the two together. Each exported function
// takes the dynamic parts and returns a fully interpolated section.
package prompts
