// Package server binds the tool dispatcher to MCP transports.
//
// # MCP Binding
//
// [NewMCPServer] registers every tool of a [tools.Dispatcher] with the go-sdk server. Arguments are
// passed through as raw JSON, so malformed input still produces the dispatcher's envelope rather
// than a protocol error. Envelopes are sent both as JSON text content and as structured content;
// error envelopes set IsError.
//
// [RunStdio] serves the protocol over stdin and stdout. Nothing else may write to stdout while it runs.
//
// # HTTP
//
// [NewHTTPHandler] mounts the streamable HTTP transport at /mcp and a health check at /health on a
// [Router] with request logging. A [Handler] carries its own route patterns and is registered with
// [Router.Mount].
package server
