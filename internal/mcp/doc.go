// Package mcp implements both sides of the Model Context Protocol over
// stdio.
//
// On the host side a [Client] owns one subprocess reached through a
// [StdioTransport]. It performs the initialize handshake, retrieves the
// tool catalog with tools/list, and forwards tools/call requests. The
// [Hub] starts one Client per configured server, and [BridgeTools]
// exposes every catalog tool in a [tools.Registry] as
// mcp_<server>_<tool>.
//
// On the server side a [Server] dispatches newline-delimited JSON-RPC
// read from standard input, and [NewToolServer] registers the MCP
// method set over a static list of [ExposedTool] values.
//
// Messages are JSON-RPC 2.0, one document per line, no batching.
package mcp
