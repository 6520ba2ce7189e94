package dispatch

import (
	"context"
	"fmt"
	"strings"

	"vmdash.io/vmdash/internal/domain"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/view"
)

func validSnapshotName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.Validation(apperrors.CodeValidationFailed, "snapshot name is required")
	}
	return nil
}

// CreateSnapshot snapshots a VM.
func (d *Dispatcher) CreateSnapshot(ctx context.Context, vmName, snapshot string, provider domain.ProviderID) error {
	fl := failure{action: "snapshot_create", prefix: "Error: ", generic: "Error creating snapshot"}
	if err := validSnapshotName(snapshot); err != nil {
		return d.fail(ctx, fl, err)
	}

	done := view.Begin(d.loading)
	defer done()

	msg, err := d.backend.CreateSnapshot(ctx, vmName, snapshot, provider)
	if err != nil {
		return d.fail(ctx, fl, err)
	}
	d.succeed(fl.action, orDefault(msg, fmt.Sprintf("Snapshot '%s' created for VM '%s'", snapshot, vmName)))
	return nil
}

// RestoreSnapshot reverts a VM to a snapshot and reloads the VM list, since
// the VM's state may change.
func (d *Dispatcher) RestoreSnapshot(ctx context.Context, vmName, snapshot string, provider domain.ProviderID) error {
	fl := failure{action: "snapshot_restore", prefix: "Error: ", generic: "Error restoring snapshot"}
	if err := validSnapshotName(snapshot); err != nil {
		return d.fail(ctx, fl, err)
	}

	done := view.Begin(d.loading)
	defer done()

	msg, err := d.backend.RestoreSnapshot(ctx, vmName, snapshot, provider)
	if err != nil {
		return d.fail(ctx, fl, err)
	}
	d.succeed(fl.action, orDefault(msg, fmt.Sprintf("VM '%s' restored to snapshot '%s'", vmName, snapshot)))
	_ = d.vms.ReloadVMs(ctx)
	return nil
}

// SnapshotDeletePrompt is the confirmation text for deleting a snapshot.
func SnapshotDeletePrompt(vmName, snapshot string) string {
	return fmt.Sprintf("Are you sure you want to delete snapshot '%s' of VM '%s'?", snapshot, vmName)
}

// DeleteSnapshot removes a snapshot after confirmation.
func (d *Dispatcher) DeleteSnapshot(ctx context.Context, vmName, snapshot string, provider domain.ProviderID) error {
	fl := failure{action: "snapshot_delete", prefix: "Error: ", generic: "Error deleting snapshot"}
	if err := validSnapshotName(snapshot); err != nil {
		return d.fail(ctx, fl, err)
	}
	if !d.confirm.Confirm(ctx, SnapshotDeletePrompt(vmName, snapshot)) {
		d.observe(fl.action, OutcomeDeclined)
		return nil
	}

	done := view.Begin(d.loading)
	defer done()

	msg, err := d.backend.DeleteSnapshot(ctx, vmName, snapshot, provider)
	if err != nil {
		return d.fail(ctx, fl, err)
	}
	d.succeed(fl.action, orDefault(msg, fmt.Sprintf("Snapshot '%s' deleted", snapshot)))
	return nil
}
