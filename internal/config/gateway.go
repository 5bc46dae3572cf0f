package config

import "github.com/spf13/viper"

// Gateway configures the realtime fan-out surface.
type Gateway struct {
	// OwnerScoped restricts each connection to events for jobs owned by the
	// authenticated user; admins always receive the full stream.
	OwnerScoped bool
}

func getGatewayConfig(v *viper.Viper) *Gateway {
	return &Gateway{
		OwnerScoped: v.GetBool("gateway.owner_scoped"),
	}
}
