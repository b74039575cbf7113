package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
)

// objectGroup is every announcement in a batch naming one snapshot object.
type objectGroup struct {
	key          string
	announcement domain.SnapshotAnnouncement
	events       []domain.RawEvent
}

// groupByObject parses a batch and groups the announcements by object key,
// in order of first appearance. The first announcement of a group is the one
// warmed. Messages that do not parse are returned separately.
func groupByObject(raws []domain.RawEvent, logger *slog.Logger) ([]*objectGroup, []domain.RawEvent) {
	var (
		groups  []*objectGroup
		invalid []domain.RawEvent
	)
	byKey := make(map[string]*objectGroup, len(raws))

	for _, raw := range raws {
		a, err := domain.ParseAnnouncement(raw)
		if err != nil {
			logger.Warn("invalid announcement, skipping",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			invalid = append(invalid, raw)
			continue
		}

		key := a.Key()
		if g, ok := byKey[key]; ok {
			g.events = append(g.events, raw)
			continue
		}
		g := &objectGroup{key: key, announcement: a, events: []domain.RawEvent{raw}}
		byKey[key] = g
		groups = append(groups, g)
	}
	return groups, invalid
}
