// Package policy decides what a subject may do with a resource. Every HTTP
// route and service method asks Authorize instead of inspecting roles inline.
package policy

import (
	"github.com/google/uuid"

	"github.com/javajoker/wavhaven-backend/internal/models"
)

type ResourceKind string

const (
	ResourceCatalog       ResourceKind = "catalog"
	ResourceCart          ResourceKind = "cart"
	ResourceOrder         ResourceKind = "order"
	ResourceTrack         ResourceKind = "track"
	ResourceLicense       ResourceKind = "license"
	ResourceTrackFile     ResourceKind = "track_file"
	ResourceSellerProfile ResourceKind = "seller_profile"
	ResourceUser          ResourceKind = "user"
	ResourceReport        ResourceKind = "report"
	ResourceDashboard     ResourceKind = "dashboard"
	ResourceInteraction   ResourceKind = "interaction"
)

type Action string

const (
	ActionRead     Action = "read"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionPurchase Action = "purchase"
	ActionSubmit   Action = "submit"
	ActionReview   Action = "review"
	ActionRefund   Action = "refund"
	ActionManage   Action = "manage"
)

// RoleGuest is the role of an anonymous caller.
const RoleGuest models.UserRole = ""

type Subject struct {
	UserID uuid.UUID
	Role   models.UserRole
}

func Guest() Subject {
	return Subject{Role: RoleGuest}
}

func (s Subject) Authenticated() bool {
	return s.UserID != uuid.Nil && s.Role != RoleGuest
}

// Resource identifies what is being acted on. OwnerID is the owning user when
// the resource has one (track producer, order buyer, profile holder).
type Resource struct {
	Kind    ResourceKind
	OwnerID uuid.UUID
}

func On(kind ResourceKind) Resource {
	return Resource{Kind: kind}
}

func Owned(kind ResourceKind, ownerID uuid.UUID) Resource {
	return Resource{Kind: kind, OwnerID: ownerID}
}

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

type rule func(Subject, Resource) Decision

func anyone(Subject, Resource) Decision { return allow() }

func signedIn(s Subject, _ Resource) Decision {
	if !s.Authenticated() {
		return deny("authentication required")
	}
	return allow()
}

func roles(allowed ...models.UserRole) rule {
	return func(s Subject, _ Resource) Decision {
		if !s.Authenticated() {
			return deny("authentication required")
		}
		for _, r := range allowed {
			if s.Role == r {
				return allow()
			}
		}
		return deny("role " + string(s.Role) + " not permitted")
	}
}

func adminOnly(s Subject, r Resource) Decision {
	return roles(models.UserRoleAdmin)(s, r)
}

// ownerOrAdmin allows admins and the owner of the resource. A zero OwnerID
// means the resource is not loaded yet; the caller must re-check with it set.
func ownerOrAdmin(s Subject, r Resource) Decision {
	if !s.Authenticated() {
		return deny("authentication required")
	}
	if s.Role == models.UserRoleAdmin {
		return allow()
	}
	if r.OwnerID == uuid.Nil || r.OwnerID == s.UserID {
		return allow()
	}
	return deny("not the owner")
}

// producerOwnerOrAdmin is ownerOrAdmin restricted to producers for non-admins.
func producerOwnerOrAdmin(s Subject, r Resource) Decision {
	if d := roles(models.UserRoleProducer, models.UserRoleAdmin)(s, r); !d.Allowed {
		return d
	}
	return ownerOrAdmin(s, r)
}

var rules = map[ResourceKind]map[Action]rule{
	ResourceCatalog: {
		ActionRead: anyone,
	},
	ResourceCart: {
		ActionRead:     anyone,
		ActionPurchase: signedIn,
	},
	ResourceOrder: {
		ActionRead:   ownerOrAdmin,
		ActionRefund: adminOnly,
		ActionManage: adminOnly,
	},
	ResourceTrack: {
		ActionRead:   anyone,
		ActionCreate: roles(models.UserRoleProducer, models.UserRoleAdmin),
		ActionUpdate: producerOwnerOrAdmin,
		ActionDelete: producerOwnerOrAdmin,
		ActionSubmit: producerOwnerOrAdmin,
		ActionReview: adminOnly,
	},
	ResourceLicense: {
		ActionRead:   anyone,
		ActionCreate: producerOwnerOrAdmin,
		ActionUpdate: producerOwnerOrAdmin,
		ActionDelete: producerOwnerOrAdmin,
	},
	ResourceTrackFile: {
		ActionRead:   signedIn,
		ActionCreate: producerOwnerOrAdmin,
		ActionDelete: producerOwnerOrAdmin,
	},
	ResourceSellerProfile: {
		ActionCreate: roles(models.UserRoleCustomer, models.UserRoleProducer, models.UserRoleAdmin),
		ActionRead:   ownerOrAdmin,
		ActionUpdate: producerOwnerOrAdmin,
	},
	ResourceUser: {
		ActionRead:   ownerOrAdmin,
		ActionUpdate: ownerOrAdmin,
		ActionManage: adminOnly,
	},
	ResourceReport: {
		ActionCreate: signedIn,
		ActionReview: adminOnly,
	},
	ResourceDashboard: {
		ActionRead: adminOnly,
	},
	ResourceInteraction: {
		ActionCreate: signedIn,
		ActionDelete: signedIn,
	},
}

// Authorize evaluates the policy for subject acting on resource.
// Unknown resource/action pairs are denied.
func Authorize(subject Subject, resource Resource, action Action) Decision {
	actions, ok := rules[resource.Kind]
	if !ok {
		return deny("unknown resource")
	}
	r, ok := actions[action]
	if !ok {
		return deny("action not permitted")
	}
	return r(subject, resource)
}

func Allowed(subject Subject, resource Resource, action Action) bool {
	return Authorize(subject, resource, action).Allowed
}
