// Package api implements the HTTP gateway of the mirror control core.
//
// Every endpoint lives under /api/v1 and answers with the unified JSON
// envelope of response.go. Session errors keep their kind name as the
// envelope code. The telemetry endpoint streams monitoring events as
// Server-Sent Events.
package api
