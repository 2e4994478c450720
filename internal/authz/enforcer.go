// Package authz maps user roles to permissions with a casbin RBAC model.
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"geounity/internal/model"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Objects and actions checked by the services.
const (
	ObjContent           = "content"
	ObjReports           = "reports"
	ObjDebates           = "debates"
	ObjCommunityRequests = "community_requests"
	ObjOrganizations     = "organizations"
	ObjCategories        = "categories"

	ActManage   = "manage"
	ActRead     = "read"
	ActModerate = "moderate"
	ActReview   = "review"
	ActWrite    = "write"
)

type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// New builds the enforcer from the embedded model and policy.
func New() (*Enforcer, error) {
	m, err := casbinmodel.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	if err := loadPolicy(e, embeddedPolicy); err != nil {
		return nil, err
	}
	return &Enforcer{enforcer: e}, nil
}

// MustNew panics on a broken embedded policy. Meant for tests and wiring.
func MustNew() *Enforcer {
	e, err := New()
	if err != nil {
		panic(err)
	}
	return e
}

func loadPolicy(e *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := e.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := e.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("bad policy line %q", line)
		}
	}
	return nil
}

// Can reports whether role may perform act on obj.
func (e *Enforcer) Can(role model.UserRole, obj, act string) bool {
	ok, err := e.enforcer.Enforce(string(role), obj, act)
	return err == nil && ok
}

// Allowed is Can for an optional actor; anonymous callers are never allowed.
func (e *Enforcer) Allowed(actor *model.User, obj, act string) bool {
	if actor == nil || e == nil {
		return false
	}
	return e.Can(actor.Role, obj, act)
}
