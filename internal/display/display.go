// Package display implements the shared virtual-display manager: a
// ref-counted virtual framebuffer keyed by consumer tag, mutated in
// place on resize where the backend allows it, or recreated (bumping a
// generation counter) otherwise. Uses a small composable
// collaborator-interface style (ScreenCapturer, BGRAProvider,
// TightLoopHint) with a CoreGraphics-backed cgo display capturer for
// the darwin backend shape.
package display

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mirage/hostcore/internal/logging"
)

var log = logging.L("display")

var (
	ErrNotSupported    = errors.New("display: not supported on this platform")
	ErrNoConsumers     = errors.New("display: no active consumers")
	ErrUnknownConsumer = errors.New("display: unknown consumer")
)

type Resolution struct {
	Width, Height int
}

// Backend is the platform collaborator that actually owns a virtual
// framebuffer. The darwin implementation wraps CoreGraphics virtual
// display primitives (out of scope: platform capture/encoder primitives);
// this package only depends on the contract.
type Backend interface {
	Create(res Resolution, refreshRate float64, colorSpace string) (displayID string, err error)
	// Resize attempts an in-place mutation. recreated=true means the
	// backend could not resize in place and Create was called again
	// internally, returning a (possibly) new displayID.
	Resize(displayID string, res Resolution, refreshRate float64) (newDisplayID string, recreated bool, err error)
	Destroy(displayID string) error
	Bounds(displayID string) (Resolution, error)
}

// Snapshot is the value handed back from Acquire/updateResolution — a
// point-in-time description of the shared display.
type Snapshot struct {
	DisplayID   string
	Resolution  Resolution
	RefreshRate float64
	ColorSpace  string
	Generation  uint64
}

// GenerationChangeFunc is invoked whenever a recreate bumps the
// generation; bound streams use it to rebind to the new capture source.
type GenerationChangeFunc func(newSnapshot Snapshot, previousGeneration uint64)

// Manager owns at most one logical shared display at a time, created
// lazily on first Acquire and destroyed when the last consumer Releases.
type Manager struct {
	backend Backend

	mu         sync.Mutex
	consumers  map[string]bool
	current    *Snapshot
	onGenChange GenerationChangeFunc
}

func NewManager(backend Backend) *Manager {
	return &Manager{backend: backend, consumers: make(map[string]bool)}
}

// SetGenerationChangeHandler registers the callback fired on every
// generation bump (i.e. every recreate-on-resize).
func (m *Manager) SetGenerationChangeHandler(fn GenerationChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onGenChange = fn
}

// Acquire reference-counts consumer in; it creates the backing display on
// the first acquire and returns the (possibly shared) current snapshot on
// subsequent ones. A consumer that calls Acquire twice without an
// intervening Release is idempotent (still counts once).
func (m *Manager) Acquire(consumer string, res Resolution, refreshRate float64, colorSpace string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.consumers[consumer] = true
		return *m.current, nil
	}

	id, err := m.backend.Create(res, refreshRate, colorSpace)
	if err != nil {
		return Snapshot{}, fmt.Errorf("display: create: %w", err)
	}
	m.current = &Snapshot{DisplayID: id, Resolution: res, RefreshRate: refreshRate, ColorSpace: colorSpace, Generation: 1}
	m.consumers[consumer] = true
	log.Info("shared display created", "displayId", id, "width", res.Width, "height", res.Height, "consumer", consumer)
	return *m.current, nil
}

// Release decrements consumer's reference. The display is destroyed iff
// this was the last remaining consumer.
func (m *Manager) Release(consumer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.consumers[consumer] {
		return ErrUnknownConsumer
	}
	delete(m.consumers, consumer)

	if len(m.consumers) > 0 || m.current == nil {
		return nil
	}

	id := m.current.DisplayID
	m.current = nil
	log.Info("shared display destroyed", "displayId", id)
	return m.backend.Destroy(id)
}

// UpdateResolution asks the backend to mutate the display in place. If
// the backend cannot and must recreate, the generation is bumped and the
// registered handler is invoked with the new snapshot and the prior
// generation number.
func (m *Manager) UpdateResolution(res Resolution, refreshRate float64) (Snapshot, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return Snapshot{}, ErrNoConsumers
	}
	prevGen := m.current.Generation
	displayID := m.current.DisplayID
	m.mu.Unlock()

	newID, recreated, err := m.backend.Resize(displayID, res, refreshRate)
	if err != nil {
		return Snapshot{}, fmt.Errorf("display: resize: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Snapshot{}, ErrNoConsumers
	}
	m.current.Resolution = res
	m.current.RefreshRate = refreshRate
	if recreated {
		m.current.DisplayID = newID
		m.current.Generation++
	}
	snap := *m.current
	handler := m.onGenChange
	m.mu.Unlock()
	if recreated && handler != nil {
		handler(snap, prevGen)
	}
	m.mu.Lock()
	return snap, nil
}

// GetBounds returns the current resolution, recomputing from the known
// value whenever the backend reports 0×0 (common after a display-sleep
// transition on some backends).
func (m *Manager) GetBounds() (Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Resolution{}, ErrNoConsumers
	}
	reported, err := m.backend.Bounds(m.current.DisplayID)
	if err != nil {
		return Resolution{}, err
	}
	if reported.Width == 0 || reported.Height == 0 {
		return m.current.Resolution, nil
	}
	return reported, nil
}

func (m *Manager) GetGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return 0
	}
	return m.current.Generation
}

// ConsumerCount reports how many consumers currently hold the display,
// used by tests asserting the ref-count invariant.
func (m *Manager) ConsumerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.consumers)
}
