// Copyright (c) 2023 BVK Chaitanya

package db

import (
	"fmt"

	"github.com/bvk/orbtrader/journal"
	"github.com/bvk/orbtrader/order"
	"github.com/bvk/orbtrader/telegram"
)

func TypeNameValue(typename string) (any, error) {
	var v any
	switch typename {
	case "Group":
		v = new(order.Group)
	case "Transition":
		v = new(journal.Transition)
	case "TelegramState":
		v = new(telegram.State)
	default:
		return nil, fmt.Errorf("unsupported type name %q", typename)
	}
	return v, nil
}
