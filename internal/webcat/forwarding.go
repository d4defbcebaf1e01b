package webcat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

// ForwardingAction is a forwarding policy's default action. TargetURL
// and PacContent are pointers so clearing a field writes an explicit
// null.
type ForwardingAction struct {
	ActionType string  `json:"actionType"`
	TargetURL  *string `json:"targetURL"`
	PacContent *string `json:"pacContent"`
}

// ForwardingPolicy is the tenant's default forwarding policy.
type ForwardingPolicy struct {
	ID                      string           `json:"id"`
	DefaultForwardingAction ForwardingAction `json:"defaultForwardingAction"`
}

const listForwardingPoliciesQuery = `
  query ListUnityDefaultForwardingPolicys {
    listUnityDefaultForwardingPolicys {
      items {
        id
        defaultForwardingAction {
          actionType
          targetURL
          pacContent
        }
      }
    }
  }
`

const updateForwardingPolicyMutation = `
  mutation UpdateUnityDefaultForwardingPolicy($input: UpdateUnityDefaultForwardingPolicyInput!) {
    updateUnityDefaultForwardingPolicy(input: $input) {
      id
      defaultForwardingAction {
        actionType
        targetURL
        pacContent
      }
    }
  }
`

// FetchDefaultForwardingPolicy returns the tenant's default forwarding
// policy. There is exactly one; the first item wins.
func (s *Service) FetchDefaultForwardingPolicy(ctx context.Context) (*ForwardingPolicy, error) {
	data, err := s.gql.ExecRaw(ctx, listForwardingPoliciesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("list forwarding policies: %w", err)
	}

	var out struct {
		ListUnityDefaultForwardingPolicys struct {
			Items []ForwardingPolicy `json:"items"`
		} `json:"listUnityDefaultForwardingPolicys"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode forwarding policies: %w", err)
	}
	if len(out.ListUnityDefaultForwardingPolicys.Items) == 0 {
		return nil, fmt.Errorf("no default forwarding policy configured")
	}
	return &out.ListUnityDefaultForwardingPolicys.Items[0], nil
}

// UpdateDefaultForwardingPolicy writes a changed policy back.
func (s *Service) UpdateDefaultForwardingPolicy(ctx context.Context, policy *ForwardingPolicy) (*ForwardingPolicy, error) {
	data, err := s.gql.ExecRaw(ctx, updateForwardingPolicyMutation, map[string]any{
		"input": policy,
	})
	if err != nil {
		return nil, fmt.Errorf("update forwarding policy %s: %w", policy.ID, err)
	}

	var out struct {
		UpdateUnityDefaultForwardingPolicy ForwardingPolicy `json:"updateUnityDefaultForwardingPolicy"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode updated forwarding policy: %w", err)
	}
	return &out.UpdateUnityDefaultForwardingPolicy, nil
}

// SetPACResult reports what SetPAC wrote.
type SetPACResult struct {
	PolicyID string
	// Verified is true when the portal echoed back the PAC content sent.
	Verified bool
}

// SetPAC switches the default forwarding policy to PAC-based forwarding
// with the given script, clearing any target URL, and verifies the
// write against the portal's echo.
func (s *Service) SetPAC(ctx context.Context, pac string) (*SetPACResult, error) {
	logger := ctxlog.FromContext(ctx)

	policy, err := s.FetchDefaultForwardingPolicy(ctx)
	if err != nil {
		return nil, err
	}

	policy.DefaultForwardingAction.ActionType = "pac"
	policy.DefaultForwardingAction.TargetURL = nil
	policy.DefaultForwardingAction.PacContent = &pac

	updated, err := s.UpdateDefaultForwardingPolicy(ctx, policy)
	if err != nil {
		return nil, err
	}

	echoed := updated.DefaultForwardingAction.PacContent
	result := &SetPACResult{
		PolicyID: policy.ID,
		Verified: updated.DefaultForwardingAction.ActionType == "pac" &&
			echoed != nil && *echoed == pac,
	}
	logger.Info("forwarding policy updated",
		"policy", policy.ID, "pac_bytes", len(pac), "verified", result.Verified)
	return result, nil
}
