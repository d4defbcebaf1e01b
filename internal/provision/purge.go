package provision

import (
	"context"
	"fmt"

	"github.com/mammoth-cyber/mammothctl/internal/api"
	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

// PurgeUser removes a user and every team, access role, policy and
// application that would be left referencing only that user. The user's
// email doubles as their id. With the client in dry-run mode, every
// would-be mutation is logged and nothing is changed.
//
// The cascade runs in dependency order: applications of policies that
// only grant the user's roles, then those policies, then relationship
// links, then the user's own teams and roles when nothing else uses
// them, then a sweep for policies/teams/roles orphaned along the way,
// and finally the user entry itself.
func PurgeUser(ctx context.Context, c *api.Client, userID string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("removing user", "user", userID, "dry_run", c.DryRun())

	user, err := c.Get(ctx, api.PathUsers, userID)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	teamIDs := api.Strings(user, "teamIds")
	roleIDs := api.Strings(user, "accessRoleIds")
	roleSet := toSet(roleIDs)
	teamSet := toSet(teamIDs)

	if err := purgePoliciesWithApps(ctx, c, roleSet); err != nil {
		return err
	}
	if err := unlinkRelationships(ctx, c, userID, teamIDs, roleIDs); err != nil {
		return err
	}
	if err := purgeOwnedTeamsAndRoles(ctx, c, userID, teamIDs, roleIDs, roleSet, teamSet); err != nil {
		return err
	}
	if err := sweepOrphanPolicies(ctx, c, roleSet); err != nil {
		return err
	}
	if err := sweepOrphanTeams(ctx, c, userID); err != nil {
		return err
	}
	if err := sweepOrphanRoles(ctx, c, userID, teamSet); err != nil {
		return err
	}

	if err := c.Delete(ctx, api.PathUsers, userID, nil); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// purgePoliciesWithApps deletes applications whose policy grants nothing
// beyond the user's roles, then the policies themselves.
func purgePoliciesWithApps(ctx context.Context, c *api.Client, roleSet map[string]bool) error {
	apps, err := c.List(ctx, api.PathApplications)
	if err != nil {
		return fmt.Errorf("list applications: %w", err)
	}

	// Group application ids by the policy attached to them.
	policyApps := make(map[string][]string)
	for _, app := range apps {
		policyID := api.String(app, "policyId")
		if policyID == "" {
			continue
		}
		policyApps[policyID] = append(policyApps[policyID], api.String(app, "id"))
	}

	var deletablePolicies, deletableApps []string
	for policyID, appIDs := range policyApps {
		policy, err := c.Get(ctx, api.PathPolicies, policyID)
		if err != nil {
			return fmt.Errorf("fetch policy %s: %w", policyID, err)
		}
		if subset(policyRoleIDs(policy), roleSet) {
			deletablePolicies = append(deletablePolicies, policyID)
			deletableApps = append(deletableApps, appIDs...)
		}
	}

	for _, appID := range deletableApps {
		if err := c.Delete(ctx, api.PathApplications, appID, nil); err != nil {
			return fmt.Errorf("delete application %s: %w", appID, err)
		}
	}
	for _, policyID := range deletablePolicies {
		if err := c.Delete(ctx, api.PathPolicies, policyID, nil); err != nil {
			return fmt.Errorf("delete policy %s: %w", policyID, err)
		}
	}
	return nil
}

// unlinkRelationships removes the user-team, user-role and team-role links.
func unlinkRelationships(ctx context.Context, c *api.Client, userID string, teamIDs, roleIDs []string) error {
	for _, teamID := range teamIDs {
		path := fmt.Sprintf("%s/%s/users", api.PathTeams, teamID)
		if err := c.Delete(ctx, path, "", []string{userID}); err != nil {
			return fmt.Errorf("unlink user from team %s: %w", teamID, err)
		}
	}
	for _, roleID := range roleIDs {
		usersPath := fmt.Sprintf("%s/%s/users", api.PathAccessRoles, roleID)
		if err := c.Delete(ctx, usersPath, "", []string{userID}); err != nil {
			return fmt.Errorf("unlink user from role %s: %w", roleID, err)
		}
		teamsPath := fmt.Sprintf("%s/%s/teams", api.PathAccessRoles, roleID)
		if err := c.Delete(ctx, teamsPath, "", teamIDs); err != nil {
			return fmt.Errorf("unlink teams from role %s: %w", roleID, err)
		}
	}
	return nil
}

// purgeOwnedTeamsAndRoles deletes the user's teams and roles when they
// reference nothing beyond the user and each other.
func purgeOwnedTeamsAndRoles(ctx context.Context, c *api.Client, userID string, teamIDs, roleIDs []string, roleSet, teamSet map[string]bool) error {
	userOnly := map[string]bool{userID: true}

	var deletableTeams []string
	for _, teamID := range teamIDs {
		team, err := c.Get(ctx, api.PathTeams, teamID)
		if err != nil {
			return fmt.Errorf("fetch team %s: %w", teamID, err)
		}
		if subset(api.Strings(team, "emails"), userOnly) && subset(api.Strings(team, "accessRoleIds"), roleSet) {
			deletableTeams = append(deletableTeams, teamID)
		}
	}

	var deletableRoles []string
	for _, roleID := range roleIDs {
		role, err := c.Get(ctx, api.PathAccessRoles, roleID)
		if err != nil {
			return fmt.Errorf("fetch role %s: %w", roleID, err)
		}
		if subset(api.Strings(role, "emails"), userOnly) && subset(api.Strings(role, "teamIds"), teamSet) {
			deletableRoles = append(deletableRoles, roleID)
		}
	}

	for _, teamID := range deletableTeams {
		if err := c.Delete(ctx, api.PathTeams, teamID, nil); err != nil {
			return fmt.Errorf("delete team %s: %w", teamID, err)
		}
	}
	for _, roleID := range deletableRoles {
		if err := c.Delete(ctx, api.PathAccessRoles, roleID, nil); err != nil {
			return fmt.Errorf("delete role %s: %w", roleID, err)
		}
	}
	return nil
}

// sweepOrphanPolicies re-examines every policy after the deletes above.
// Rules that still mix the user's roles with others are rewritten with
// the user's roles removed; policies granting nothing else are deleted.
func sweepOrphanPolicies(ctx context.Context, c *api.Client, roleSet map[string]bool) error {
	policies, err := c.List(ctx, api.PathPolicies)
	if err != nil {
		return fmt.Errorf("list policies: %w", err)
	}

	for _, policy := range policies {
		policyID := api.String(policy, "id")
		rules := api.Objects(policy, "rules")

		var allRoleIDs []string
		changed := false
		newRules := make([]api.Resource, 0, len(rules))
		for _, rule := range rules {
			ruleRoles := api.Strings(rule, "accessRoleIds")
			allRoleIDs = append(allRoleIDs, ruleRoles...)

			remaining := without(ruleRoles, roleSet)
			switch {
			case len(remaining) == len(ruleRoles):
				newRules = append(newRules, rule)
			case len(remaining) > 0:
				changed = true
				newRule := clone(rule)
				newRule["accessRoleIds"] = remaining
				newRules = append(newRules, newRule)
			default:
				// Every role in the rule belonged to the user; drop the rule.
				changed = true
			}
		}

		if subset(allRoleIDs, roleSet) {
			if err := c.Delete(ctx, api.PathPolicies, policyID, nil); err != nil {
				return fmt.Errorf("delete orphan policy %s: %w", policyID, err)
			}
			continue
		}
		if changed {
			newPolicy := clone(policy)
			newPolicy["rules"] = newRules
			if err := c.Update(ctx, api.PathPolicies, policyID, newPolicy); err != nil {
				return fmt.Errorf("update policy %s: %w", policyID, err)
			}
		}
	}
	return nil
}

// sweepOrphanTeams unlinks the user from teams that now list only them.
func sweepOrphanTeams(ctx context.Context, c *api.Client, userID string) error {
	teams, err := c.List(ctx, api.PathTeams)
	if err != nil {
		return fmt.Errorf("list teams: %w", err)
	}
	for _, team := range teams {
		emails := api.Strings(team, "emails")
		if len(emails) == 1 && emails[0] == userID {
			teamID := api.String(team, "id")
			path := fmt.Sprintf("%s/%s/users", api.PathTeams, teamID)
			if err := c.Delete(ctx, path, "", []string{userID}); err != nil {
				return fmt.Errorf("unlink user from orphan team %s: %w", teamID, err)
			}
		}
	}
	return nil
}

// sweepOrphanRoles deletes roles that now reference only this user and
// their teams.
func sweepOrphanRoles(ctx context.Context, c *api.Client, userID string, teamSet map[string]bool) error {
	roles, err := c.List(ctx, api.PathAccessRoles)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	for _, role := range roles {
		emails := api.Strings(role, "emails")
		if len(emails) == 1 && emails[0] == userID && subset(api.Strings(role, "teamIds"), teamSet) {
			roleID := api.String(role, "id")
			if err := c.Delete(ctx, api.PathAccessRoles, roleID, nil); err != nil {
				return fmt.Errorf("delete orphan role %s: %w", roleID, err)
			}
		}
	}
	return nil
}

// policyRoleIDs flattens the accessRoleIds of every rule in a policy.
func policyRoleIDs(policy api.Resource) []string {
	var ids []string
	for _, rule := range api.Objects(policy, "rules") {
		ids = append(ids, api.Strings(rule, "accessRoleIds")...)
	}
	return ids
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// subset reports whether every value is in the set. An empty slice is a
// subset of anything.
func subset(values []string, set map[string]bool) bool {
	for _, v := range values {
		if !set[v] {
			return false
		}
	}
	return true
}

// without returns values minus those present in the set, order preserved.
func without(values []string, set map[string]bool) []string {
	var out []string
	for _, v := range values {
		if !set[v] {
			out = append(out, v)
		}
	}
	return out
}

func clone(r api.Resource) api.Resource {
	out := make(api.Resource, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
