package cloud

import (
	"context"
	"fmt"

	"github.com/jitsi-contrib/autoscaler/internal/model"
)

// poolResizer is the narrow contract a capacity-based cloud pool (Azure
// VMSS, GCP Managed Instance Group) must provide. Neither cloud's API
// returns newly created instance IDs from a resize call, so PoolAdapter
// discovers them by diffing membership before and after (spec.md §4.6's
// "pool adapter" redesign).
type poolResizer interface {
	members(ctx context.Context) ([]model.CloudInstance, error)
	currentSize(ctx context.Context) (int, error)
	resize(ctx context.Context, newSize int) error
	deleteMember(ctx context.Context, instanceID string) error
}

// PoolAdapter implements Manager on top of a poolResizer. It is embedded by
// the Azure and GCP adapters.
type PoolAdapter struct {
	resizer poolResizer
}

func (p *PoolAdapter) Launch(ctx context.Context, _ model.InstanceGroup, count int) ([]model.CloudInstance, error) {
	if count <= 0 {
		return nil, nil
	}

	before, err := p.resizer.members(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not snapshot pool membership before resize: %w", err)
	}
	beforeIDs := make(map[string]struct{}, len(before))
	for _, m := range before {
		beforeIDs[m.InstanceID] = struct{}{}
	}

	size, err := p.resizer.currentSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read current pool size: %w", err)
	}
	if err := p.resizer.resize(ctx, size+count); err != nil {
		return nil, fmt.Errorf("could not resize pool: %w", err)
	}

	after, err := p.resizer.members(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not snapshot pool membership after resize: %w", err)
	}

	added := make([]model.CloudInstance, 0, count)
	for _, m := range after {
		if _, ok := beforeIDs[m.InstanceID]; !ok {
			added = append(added, m)
		}
	}
	return added, nil
}

func (p *PoolAdapter) Terminate(ctx context.Context, _ model.InstanceGroup, instanceID string) error {
	return p.resizer.deleteMember(ctx, instanceID)
}

func (p *PoolAdapter) Enumerate(ctx context.Context, _ model.InstanceGroup) ([]model.CloudInstance, error) {
	return p.resizer.members(ctx)
}

var _ Manager = (*PoolAdapter)(nil)
