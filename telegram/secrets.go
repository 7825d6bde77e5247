// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"fmt"
	"os"
	"slices"
)

// Secrets identifies the alert bot and the chat users allowed to talk to it.
// Field names follow the alerts.telegram section of the configuration file.
type Secrets struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`

	OwnerID string `json:"owner" yaml:"owner"`

	// AdminID is optional.
	AdminID string `json:"admin,omitempty" yaml:"admin"`

	OtherIDs []string `json:"others,omitempty" yaml:"others"`
}

func (v *Secrets) Check() error {
	if len(v.BotToken) == 0 {
		return fmt.Errorf("alerts.telegram.bot_token cannot be empty: %w", os.ErrInvalid)
	}
	if len(v.OwnerID) == 0 {
		return fmt.Errorf("alerts.telegram.owner cannot be empty: %w", os.ErrInvalid)
	}
	if len(v.AdminID) != 0 && v.AdminID == v.OwnerID {
		return fmt.Errorf("alerts.telegram.admin %q is the owner: %w", v.AdminID, os.ErrInvalid)
	}
	for _, id := range v.OtherIDs {
		switch {
		case len(id) == 0:
			return fmt.Errorf("alerts.telegram.others cannot have an empty id: %w", os.ErrInvalid)
		case id == v.OwnerID:
			return fmt.Errorf("alerts.telegram.others repeats the owner %q: %w", id, os.ErrInvalid)
		case len(v.AdminID) != 0 && id == v.AdminID:
			return fmt.Errorf("alerts.telegram.others repeats the admin %q: %w", id, os.ErrInvalid)
		}
	}
	return nil
}

func (v *Secrets) Clone() *Secrets {
	return &Secrets{
		BotToken: v.BotToken,
		OwnerID:  v.OwnerID,
		AdminID:  v.AdminID,
		OtherIDs: slices.Clone(v.OtherIDs),
	}
}
