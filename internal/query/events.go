package query

import (
	"github.com/gcoo-labs/pinch/internal/events"
	"github.com/sirupsen/logrus"
)

// InvalidateOnEvents invalidates cached queries whenever another process
// announces a mutation. Events whose Source equals self are ignored since
// local mutations already invalidated the cache. The returned function
// stops listening.
func (c *Client) InvalidateOnEvents(sub events.Subscriber, self string) (func() error, error) {
	return sub.Subscribe(func(e *events.MutationEvent) {
		if self != "" && e.Source == self {
			return
		}
		keys := make([]Key, 0, len(e.Keys))
		for _, k := range e.Keys {
			keys = append(keys, Key(k))
		}
		n := c.Invalidate(keys...)
		c.log.WithFields(logrus.Fields{
			"event":    e.ID,
			"resource": e.Resource,
			"source":   e.Source,
			"marked":   n,
		}).Debug("Invalidated queries from mutation event")
	})
}
