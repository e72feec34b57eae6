// Package serve puts server and websocket components on the network.
//
// An HTTP request reaches the component's incoming-handler export as a JSON
// Request, and the JSON Response it returns is written back to the client.
// A websocket connection hands every frame to the websocket handler export
// and sends any non-empty reply back as a text frame.
package serve
