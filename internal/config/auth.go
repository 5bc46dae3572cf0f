package config

import (
	"time"

	"github.com/spf13/viper"
)

// Auth holds the token verification configuration.
type Auth struct {
	Secret string
	Expiry time.Duration
}

func getAuthConfig(v *viper.Viper) *Auth {
	return &Auth{
		Secret: v.GetString("auth.secret"),
		Expiry: getDurationOrDefault(v, "auth.expiry", 24*time.Hour),
	}
}
