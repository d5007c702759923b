// Package ws streams the dataset summary over WebSocket at /ws/stream.
//
// Every frame is
//
//	{"event": "summary", "data": <GET /api/v1/summary body>}
//
// A new session always receives the current summary first. After that the
// hub pushes on Hub.Notify (wired to Store.OnChange) and, on each broadcast
// interval, only when the dataset version has moved. A session that falls
// queueDepth frames behind is evicted.
//
// The upgrader accepts any origin; restrict origins at the proxy.
package ws
