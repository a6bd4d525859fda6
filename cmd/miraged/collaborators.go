package main

import (
	"context"

	"github.com/mirage/hostcore/internal/appstream"
	"github.com/mirage/hostcore/internal/desktopstream"
	"github.com/mirage/hostcore/internal/monitor"
	"github.com/mirage/hostcore/internal/sessiontracker"
	"github.com/mirage/hostcore/internal/streamctx"
	"github.com/mirage/hostcore/internal/trust"
	"github.com/mirage/hostcore/internal/wire"
)

// The collaborators below stand in for platform primitives this repo
// does not implement: the trust store, the accessibility UI/hierarchy,
// and window enumeration/activation. Each is a narrow, honestly-named
// placeholder rather than a fabricated implementation — swapping in the
// real macOS-backed version only touches this file.

// noopTrustStore always defers to the delegate: no persisted trust
// store is wired in this tree, so every peer requires approval.
type noopTrustStore struct{}

func (noopTrustStore) EvaluateTrust(ctx context.Context, identity trust.Identity) (trust.Decision, string, error) {
	return trust.DecisionRequiresApproval, "no trust store configured", nil
}

// autoApproveDelegate approves any peer on the LAN. A real host would
// show an approval dialog; this keeps the daemon usable standalone.
type autoApproveDelegate struct{}

func (autoApproveDelegate) RequestApproval(ctx context.Context, identity trust.Identity, reason string) bool {
	log.Warn("auto-approving client (no trust UI wired)", "deviceId", identity.DeviceID, "deviceName", identity.DeviceName, "reason", reason)
	return true
}

// alwaysActiveQuerier reports the session as always active. The real
// macOS implementation would call CGSessionCopyCurrentDictionary (or
// equivalent); see internal/sessiontracker's Querier doc comment.
type alwaysActiveQuerier struct{}

func (alwaysActiveQuerier) QuerySessionState(ctx context.Context) (sessiontracker.State, error) {
	return sessiontracker.StateActive, nil
}

// noopTopology never finds any physical displays to mirror: enabling
// desktop mirroring onto a real set of physical displays needs a
// CoreGraphics primitive not implemented here.
type noopTopology struct{}

func (noopTopology) Snapshot() (desktopstream.TopologySnapshot, error) {
	return desktopstream.TopologySnapshot{}, nil
}

func (noopTopology) EnableMirroring(physicalDisplayIDs []string, virtualDisplayID string) error {
	return nil
}

func (noopTopology) Restore(snapshot desktopstream.TopologySnapshot) error {
	return nil
}

// unimplementedActivator reports no windows for any bundle id: window
// enumeration/activation needs an Accessibility-API collaborator not
// implemented here.
type unimplementedActivator struct{}

func (unimplementedActivator) LaunchOrFind(bundleID string) (string, string, error) {
	return "", "", appstream.ErrActivatorUnavailable
}

func (unimplementedActivator) Windows(bundleID string) ([]appstream.WindowDescriptor, error) {
	return nil, appstream.ErrActivatorUnavailable
}

func (unimplementedActivator) StartWindowStream(windowID uint32) (*streamctx.StreamContext, error) {
	return nil, appstream.ErrActivatorUnavailable
}

func (unimplementedActivator) CloseWindow(windowID uint32) error {
	return appstream.ErrActivatorUnavailable
}

func (unimplementedActivator) InstalledApps() ([]appstream.AppDescriptor, error) {
	return nil, appstream.ErrActivatorUnavailable
}

// SetObserver discards the observer: with no real window-enumeration
// machinery wired, this Activator never has a new-window or
// app-terminated event to report.
func (unimplementedActivator) SetObserver(appstream.Observer) {}

type noopMenuProvider struct{}

func (noopMenuProvider) MenuTree() ([]wire.MenuItem, error) { return nil, nil }

type noopMenuExecutor struct{}

func (noopMenuExecutor) ExecuteMenuAction(actionID string) error { return nil }

type noopCursorShape struct{}

func (noopCursorShape) CursorShape() ([]byte, float64, float64, error) { return nil, 0, 0, nil }

type alwaysFrontmost struct{}

func (alwaysFrontmost) IsFrontmost(windowID uint32) bool { return true }

var _ monitor.CursorShapeSource = noopCursorShape{}
var _ monitor.FrontmostQuerier = alwaysFrontmost{}
var _ monitor.MenuProvider = noopMenuProvider{}
var _ monitor.MenuActionExecutor = noopMenuExecutor{}
