package gateway

import "go.uber.org/fx"

var Module = fx.Options(
	fx.Provide(NewClient),
	fx.Provide(func(c *Client) Gateway { return c }),
)
