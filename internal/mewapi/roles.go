package mewapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

func (c *Client) FetchServerRoles(ctx context.Context, serverID string) ([]Role, error) {
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		return nil, fmt.Errorf("serverID is required")
	}

	var roles []Role
	if err := c.do(ctx, "GET", "/servers/"+url.PathEscape(serverID)+"/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// ResolveRoleByName finds a role by case-insensitive name match.
func (c *Client) ResolveRoleByName(ctx context.Context, serverID, name string) (Role, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, false, nil
	}

	roles, err := c.FetchServerRoles(ctx, serverID)
	if err != nil {
		return Role{}, false, err
	}
	for _, r := range roles {
		if strings.EqualFold(strings.TrimSpace(r.Name), name) {
			return r, true, nil
		}
	}
	return Role{}, false, nil
}

func (c *Client) GrantRole(ctx context.Context, serverID, userID, roleID string) error {
	serverID = strings.TrimSpace(serverID)
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if serverID == "" || userID == "" || roleID == "" {
		return fmt.Errorf("serverID, userID and roleID are required")
	}

	path := "/servers/" + url.PathEscape(serverID) + "/members/" + url.PathEscape(userID) + "/roles/" + url.PathEscape(roleID)
	return c.do(ctx, "PUT", path, nil, nil)
}
