package api

import (
	"context"
	"net/http"
)

// DefaultPlatform is the platform reported when registering a push token.
const DefaultPlatform = "android"

// NotificationAPI covers /notifications.
type NotificationAPI struct{ c *Client }

// RegisterDevice associates a push token with the signed-in user.
// An empty platform means DefaultPlatform.
func (n *NotificationAPI) RegisterDevice(ctx context.Context, token, platform string) error {
	if platform == "" {
		platform = DefaultPlatform
	}
	return n.c.do(ctx, call{
		method: http.MethodPost,
		path:   "/notifications/register-device",
		body:   registerDeviceRequest{FCMToken: token, Platform: platform},
	})
}
