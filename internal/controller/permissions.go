package controller

import (
	"context"
	"errors"

	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/store"
)

// Permissions persists the user's notification permission decision.
type Permissions interface {
	Permission(ctx context.Context) (model.Permission, error)
	SetPermission(ctx context.Context, p model.Permission) error
}

// PermissionPrompt asks the user for notification permission. Returning
// PermissionDefault means the prompt was dismissed.
type PermissionPrompt func(ctx context.Context) (model.Permission, error)

// StorePermissions keeps the decision in the settings table.
type StorePermissions struct {
	store store.Store
}

// NewStorePermissions creates Permissions backed by st.
func NewStorePermissions(st store.Store) *StorePermissions {
	return &StorePermissions{store: st}
}

// Permission implements Permissions. Nothing stored means default.
func (p *StorePermissions) Permission(ctx context.Context) (model.Permission, error) {
	v, err := p.store.GetSetting(ctx, store.SettingPermission)
	if errors.Is(err, store.ErrNotFound) {
		return model.PermissionDefault, nil
	}
	if err != nil {
		return model.PermissionDefault, err
	}

	switch perm := model.Permission(v); perm {
	case model.PermissionGranted, model.PermissionDenied:
		return perm, nil
	default:
		return model.PermissionDefault, nil
	}
}

// SetPermission implements Permissions.
func (p *StorePermissions) SetPermission(ctx context.Context, perm model.Permission) error {
	return p.store.SetSetting(ctx, store.SettingPermission, string(perm))
}
