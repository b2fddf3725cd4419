// Package logging provides file-based structured logging with size rotation.
//
// Logs are JSON lines written to ~/.amandocs/logs/amandocs.log. The --debug
// flag raises the level to debug and mirrors output to stderr. The MCP server
// never logs to stdout or stderr because stdout carries the protocol stream.
package logging
