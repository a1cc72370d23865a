package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// node
	"node.added":   {},
	"node.updated": {},
	"node.renamed": {},
	"node.moved":   {},
	"node.deleted": {},

	// edge
	"edge.connected":      {},
	"edge.disconnected":   {},
	"connection.rejected": {},

	// selection
	"selection.deleted": {},

	// layout
	"layout.computed": {},

	// graph
	"graph.loaded":      {},
	"graph.saved":       {},
	"graph.save_failed": {},
	"graph.checked":     {},

	// playback
	"playback.started":  {},
	"playback.advanced": {},
	"playback.choice":   {},
	"playback.jumped":   {},
	"playback.ended":    {},
	"playback.stalled":  {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
