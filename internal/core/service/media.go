package service

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

// LocalMediaHandle wraps the capture devices of one call and the local
// enable flags used by mute and camera toggles.
type LocalMediaHandle struct {
	kind  domain.MediaKind
	media port.LocalMedia

	mu      sync.Mutex
	enabled map[domain.TrackKind]bool
	stopped bool
}

func newLocalMediaHandle(kind domain.MediaKind, media port.LocalMedia) *LocalMediaHandle {
	h := &LocalMediaHandle{
		kind:    kind,
		media:   media,
		enabled: make(map[domain.TrackKind]bool),
	}
	for _, t := range media.Tracks() {
		h.enabled[t.TrackKind()] = true
	}
	return h
}

func (h *LocalMediaHandle) Kind() domain.MediaKind {
	return h.kind
}

func (h *LocalMediaHandle) Tracks() []port.LocalTrack {
	return h.media.Tracks()
}

func (h *LocalMediaHandle) Has(kind domain.TrackKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.enabled[kind]
	return ok
}

func (h *LocalMediaHandle) Enabled(kind domain.TrackKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled[kind] && !h.stopped
}

func (h *LocalMediaHandle) setEnabled(kind domain.TrackKind, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.enabled[kind]; ok {
		h.enabled[kind] = on
	}
}

func (h *LocalMediaHandle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Stop releases the devices once; later calls are no-ops.
func (h *LocalMediaHandle) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()
	return h.media.Stop()
}
