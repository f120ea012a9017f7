package main

import (
	"github.com/RoanBrand/mqttcore"
	"github.com/RoanBrand/mqttcore/auth"
	"github.com/RoanBrand/mqttcore/internal/config"
)

// newAuther builds the Basic Auther described by c, or nil if auth is disabled.
func newAuther(c *config.Config) mqttcore.Auther {
	if !c.Auth.Enabled {
		return nil
	}

	a := auth.NewBasic()
	a.ToggleGuestAccess(c.Auth.AllowGuests)
	for _, u := range c.Auth.Users {
		a.RegisterUser(u.ClientID, u.Username, u.Password)
	}
	for filter, clients := range c.Auth.Subscriptions {
		for _, id := range clients {
			a.AllowSubscription(filter, id)
		}
	}
	return a
}
