package model

import (
	"errors"
	"fmt"
)

type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
	PermissionOwner Permission = "owner"
)

var permissionRank = map[Permission]int{
	PermissionRead:  1,
	PermissionWrite: 2,
	PermissionAdmin: 3,
	PermissionOwner: 4,
}

// Allows reports whether p grants at least need.
func (p Permission) Allows(need Permission) bool {
	r, ok := permissionRank[p]
	return ok && r >= permissionRank[need]
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

type Collaborator struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Email      string     `json:"email,omitempty"`
	Permission Permission `json:"permission,omitempty"`
	Status     Status     `json:"status,omitempty"`
	Typing     bool       `json:"typing,omitempty"`

	LegacyID string `json:"_id,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

func (c Collaborator) Normalize() Collaborator {
	if c.ID == "" {
		switch {
		case c.LegacyID != "":
			c.ID = c.LegacyID
		case c.UserID != "":
			c.ID = c.UserID
		}
	}
	c.LegacyID = ""
	c.UserID = ""
	return c
}

var (
	ErrOwnerImmutable    = errors.New("the document owner cannot be changed or removed")
	ErrNotPermitted      = errors.New("only the owner or an admin can manage collaborators")
	ErrSelfManagement    = errors.New("you cannot change your own permission")
	ErrInvalidPermission = errors.New("invalid permission")
)

// CanManage checks whether actor may change the permission of target or remove it from doc.
func CanManage(doc Document, actor, target Collaborator) error {
	if target.Permission == PermissionOwner || (doc.OwnerID != "" && target.ID == doc.OwnerID) {
		return ErrOwnerImmutable
	}
	if actor.ID == target.ID {
		return ErrSelfManagement
	}
	isOwner := actor.Permission == PermissionOwner || (doc.OwnerID != "" && actor.ID == doc.OwnerID)
	if !isOwner && actor.Permission != PermissionAdmin {
		return ErrNotPermitted
	}
	return nil
}

// ParseGrant validates a permission that can be handed to a collaborator. Ownership is not grantable.
func ParseGrant(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermissionRead, PermissionWrite, PermissionAdmin:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPermission, s)
}
