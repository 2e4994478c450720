package service

import (
	"errors"
	"fmt"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"

	"gorm.io/gorm"
)

// notFound turns a missing row into a NotFound error naming what.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkg.NotFound("%s not found", what)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", what, err)
	}
	return nil
}

func requireActor(actor *model.User) error {
	if actor == nil {
		return pkg.Unauthorized("authentication required")
	}
	return nil
}

func actorID(actor *model.User) uint64 {
	if actor == nil {
		return 0
	}
	return actor.ID
}

// canManage reports whether actor may edit or delete content created by creatorID.
func canManage(enf *authz.Enforcer, actor *model.User, creatorID uint64) bool {
	if actor == nil {
		return false
	}
	return actor.ID == creatorID || enf.Allowed(actor, authz.ObjContent, authz.ActManage)
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
