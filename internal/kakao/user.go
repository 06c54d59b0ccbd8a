package kakao

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/kakao-go/internal/transport"
)

const (
	mePath              = "/v2/user/me"
	accessTokenInfoPath = "/v1/user/access_token_info"
	logoutPath          = "/v1/user/logout"
	unlinkPath          = "/v1/user/unlink"
)

// Me fetches the current user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	return DoJSON[*User](ctx, c, &transport.Request{Method: http.MethodGet, URL: c.URL(mePath)})
}

// AccessTokenInfo reports the server's view of the current access token.
func (c *Client) AccessTokenInfo(ctx context.Context) (*TokenInfo, error) {
	return DoJSON[*TokenInfo](ctx, c, &transport.Request{Method: http.MethodGet, URL: c.URL(accessTokenInfoPath)})
}

// Logout expires the token on the server, then closes the local session
// whatever the server answered.
func (c *Client) Logout(ctx context.Context) (*UserID, error) {
	return c.endSession(ctx, logoutPath)
}

// Unlink disconnects the user from the app, then closes the local session.
func (c *Client) Unlink(ctx context.Context) (*UserID, error) {
	return c.endSession(ctx, unlinkPath)
}

func (c *Client) endSession(ctx context.Context, path string) (*UserID, error) {
	id, err := DoJSON[*UserID](ctx, c, &transport.Request{Method: http.MethodPost, URL: c.URL(path)})

	if closeErr := c.session.Close(ctx); closeErr != nil {
		c.logger.Warn("clearing token cache", slog.String("error", closeErr.Error()))
	}

	return id, err
}
