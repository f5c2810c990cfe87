package changes

import (
	"context"
	"fmt"

	"github.com/wI2L/jsondiff"

	"github.com/hotelcms/hotelcms/internal/rbac"
)

// Preview is the JSON Patch turning the original values into the proposed
// ones. Corrupt is set, and Patch left nil, when either stored record is
// unreadable.
type Preview struct {
	ChangeID int64          `json:"change_id"`
	Status   Status         `json:"status"`
	Patch    jsondiff.Patch `json:"patch"`
	Corrupt  bool           `json:"corrupt,omitempty"`
}

// Preview renders the change as an RFC 6902 patch over the original data.
func (s *Service) Preview(ctx context.Context, actor rbac.Actor, id int64) (Preview, error) {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return Preview{}, err
	}
	out := Preview{ChangeID: c.ID, Status: c.Status}
	if c.ChangeData == nil || c.OriginalData == nil {
		out.Corrupt = true
		return out, nil
	}
	proposed := make(map[string]any, len(c.OriginalData)+len(c.ChangeData))
	for k, v := range c.OriginalData {
		proposed[k] = v
	}
	for k, v := range c.ChangeData {
		proposed[k] = v
	}
	patch, err := jsondiff.Compare(c.OriginalData, proposed)
	if err != nil {
		return Preview{}, fmt.Errorf("changes: diff %d: %w", c.ID, err)
	}
	out.Patch = patch
	return out, nil
}
