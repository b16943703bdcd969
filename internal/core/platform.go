package core

import (
	"context"
	"strconv"

	"datamarket/internal/validation"
	"datamarket/pkg/domain"
)

// PlatformInit carries the bootstrap values of the platform singleton. An
// empty Verifier defaults to the admin and a nil FeeBps to the default fee.
type PlatformInit struct {
	Verifier       Principal `json:"verifier"`
	Treasury       Principal `json:"treasury"`
	FeeBps         *uint64   `json:"fee_bps,omitempty"`
	DepositPerByte uint64    `json:"deposit_per_byte"`
}

// ConfigUpdate lists the admin-changeable settings. Nil fields are left as is.
type ConfigUpdate struct {
	Treasury       *Principal `json:"treasury,omitempty"`
	Verifier       *Principal `json:"verifier,omitempty"`
	FeeBps         *uint64    `json:"fee_bps,omitempty"`
	Paused         *bool      `json:"paused,omitempty"`
	DepositPerByte *uint64    `json:"deposit_per_byte,omitempty"`
}

// InitializePlatform creates the singleton configuration with admin as its
// administrator. It can succeed only once.
func (s *Service) InitializePlatform(ctx context.Context, admin Principal, init PlatformInit) (PlatformConfig, Result, error) {
	var created PlatformConfig
	res, err := s.run(ctx, OpInitializePlatform, admin, func(tx Transaction) (string, error) {
		if err := validation.Principal(admin); err != nil {
			return "", err
		}
		if _, exists := tx.PlatformConfig(); exists {
			return domain.PlatformConfigID, domain.NewError(domain.CodeAlreadyInitialized, "platform already initialized")
		}
		verifier := init.Verifier
		if verifier.IsZero() {
			verifier = admin
		}
		feeBps := domain.DefaultPlatformFeeBps
		if init.FeeBps != nil {
			feeBps = *init.FeeBps
		}
		if err := validation.All(
			validation.Principal(verifier),
			validation.Destination(init.Treasury),
			validation.PlatformFee(feeBps),
		); err != nil {
			return "", err
		}
		var err error
		created, err = tx.CreatePlatformConfig(PlatformConfig{
			Admin:          admin,
			Verifier:       verifier,
			Treasury:       init.Treasury,
			FeeBps:         feeBps,
			DepositPerByte: init.DepositPerByte,
		})
		if err != nil {
			return "", err
		}
		return created.ID, appendEvent(tx, domain.EventPlatformInitialized, EntityPlatformConfig, created.ID, map[string]string{
			"admin":    string(created.Admin),
			"verifier": string(created.Verifier),
			"treasury": string(created.Treasury),
			"fee_bps":  strconv.FormatUint(created.FeeBps, 10),
		})
	})
	return created, res, err
}

// SetPlatformConfig applies an admin update. The whole update is validated
// before anything is written.
func (s *Service) SetPlatformConfig(ctx context.Context, admin Principal, update ConfigUpdate) (PlatformConfig, Result, error) {
	var updated PlatformConfig
	res, err := s.run(ctx, OpSetPlatformConfig, admin, func(tx Transaction) (string, error) {
		cfg, err := requirePlatform(tx)
		if err != nil {
			return "", err
		}
		if err := authorize(RoleAdmin, cfg.Admin, admin); err != nil {
			return cfg.ID, err
		}
		if update.FeeBps != nil {
			if err := validation.PlatformFee(*update.FeeBps); err != nil {
				return cfg.ID, err
			}
		}
		if update.Treasury != nil {
			if err := validation.Destination(*update.Treasury); err != nil {
				return cfg.ID, err
			}
		}
		if update.Verifier != nil {
			if err := validation.Principal(*update.Verifier); err != nil {
				return cfg.ID, err
			}
		}
		updated, err = tx.UpdatePlatformConfig(func(c *PlatformConfig) error {
			if update.Treasury != nil {
				c.Treasury = *update.Treasury
			}
			if update.Verifier != nil {
				c.Verifier = *update.Verifier
			}
			if update.FeeBps != nil {
				c.FeeBps = *update.FeeBps
			}
			if update.Paused != nil {
				c.Paused = *update.Paused
			}
			if update.DepositPerByte != nil {
				c.DepositPerByte = *update.DepositPerByte
			}
			return nil
		})
		if err != nil {
			return cfg.ID, err
		}
		return updated.ID, appendEvent(tx, domain.EventPlatformConfigUpdated, EntityPlatformConfig, updated.ID, map[string]string{
			"treasury": string(updated.Treasury),
			"verifier": string(updated.Verifier),
			"fee_bps":  strconv.FormatUint(updated.FeeBps, 10),
			"paused":   strconv.FormatBool(updated.Paused),
		})
	})
	return updated, res, err
}
