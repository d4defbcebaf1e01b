// Package provision implements the portal's user lifecycle flows: the
// create chain that gives a new user their team, access role, policy and
// SSH application, and the purge cascade that removes a user together
// with everything that would be orphaned.
package provision

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mammoth-cyber/mammothctl/internal/api"
	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

// CreateResult collects the ids of the objects created for a new user.
type CreateResult struct {
	UserID        string
	TeamID        string
	AccessRoleID  string
	PolicyID      string
	ApplicationID string
}

// CreateUser provisions a user and their associated objects. Every
// object is named after the local part of the email. sshEndpoint is the
// "host:port" the user's SSH application points at. The chain aborts on
// the first failure; nothing is rolled back.
func CreateUser(ctx context.Context, c *api.Client, email, sshEndpoint string) (*CreateResult, error) {
	logger := ctxlog.FromContext(ctx)

	name, _, ok := strings.Cut(email, "@")
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid user email %q", email)
	}
	host, portStr, ok := strings.Cut(sshEndpoint, ":")
	if !ok {
		return nil, fmt.Errorf("invalid SSH endpoint %q, want host:port", sshEndpoint)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SSH port in %q: %w", sshEndpoint, err)
	}

	logger.Info("adding user", "email", email)

	user, err := c.Create(ctx, api.PathUsers, api.Resource{
		"suspended":     false,
		"name":          name,
		"teamIds":       []string{},
		"adminRole":     "user",
		"mfa":           false,
		"accessRoleIds": []string{},
		"email":         email,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	team, err := c.Create(ctx, api.PathTeams, api.Resource{
		"name":          name,
		"emails":        []string{email},
		"accessRoleIds": []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}

	role, err := c.Create(ctx, api.PathAccessRoles, api.Resource{
		"name":    name,
		"emails":  []string{email},
		"teamIds": []string{api.String(team, "id")},
	})
	if err != nil {
		return nil, fmt.Errorf("create access role: %w", err)
	}

	policy, err := c.Create(ctx, api.PathPolicies, api.Resource{
		"name": name,
		"rules": []api.Resource{
			{
				"accessRoleIds": []string{api.String(role, "id")},
				"actions":       []string{"copy", "paste"},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create policy: %w", err)
	}

	app, err := c.Create(ctx, api.PathApplications, api.Resource{
		"name":      name,
		"type":      "saas",
		"policyId":  api.String(policy, "id"),
		"isolation": true,
		"iconUrl":   nil,
		"protocol":  "ssh",
		"host":      []string{host},
		"port":      port,
	})
	if err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	return &CreateResult{
		UserID:        api.String(user, "id"),
		TeamID:        api.String(team, "id"),
		AccessRoleID:  api.String(role, "id"),
		PolicyID:      api.String(policy, "id"),
		ApplicationID: api.String(app, "id"),
	}, nil
}
