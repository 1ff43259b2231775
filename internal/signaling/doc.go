// Package signaling contains the websocket signaling surface: the wire
// protocol, the per-connection lifecycle, and the router that moves offers,
// answers, ICE candidates, chat and presence between room members. The
// server only brokers these control-plane messages; media flows directly
// between peers.
package signaling
