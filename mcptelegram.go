// Package mcptelegram carries the identity of the server as reported to
// MCP clients during the initialize handshake and on the info endpoint.
package mcptelegram

// Name is the server name advertised to clients.
const Name = "telegram-mcp-server"

// Version is the server version advertised to clients.
const Version = "1.0.0"

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"
