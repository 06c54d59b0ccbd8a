package main

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/kakao-go/internal/kakao"
	"github.com/tonimelisma/kakao-go/internal/token"
)

func newLoginCmd() *cobra.Command {
	var (
		code      string
		noBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a Kakao account",
		Long: `Sign in and store the session token in the configured token cache.

Without --code, a local callback server is started on the configured
redirect_uri (which must be a loopback address) and the authorization page
is opened in a browser. With --code, an authorization code obtained
elsewhere is exchanged directly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				return runLogin(ctx, cc, sdk, code, noBrowser)
			})
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "authorization code to exchange")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")

	return cmd
}

func runLogin(ctx context.Context, cc *CLIContext, sdk *kakao.SDK, code string, noBrowser bool) error {
	var (
		tok *token.AccessToken
		err error
	)

	switch {
	case code != "":
		tok, err = sdk.OAuth.Exchange(ctx, code)
	case noBrowser:
		fmt.Fprintf(cc.Stdout, "Open this URL, authorize, then run 'kakao-go login --code CODE':\n%s\n",
			sdk.OAuth.AuthCodeURL("kakao-go"))

		return nil
	default:
		tok, err = sdk.OAuth.LoginWithBrowser(ctx, openBrowser, func(u string) {
			// The URL must stay visible even with --quiet.
			fmt.Fprintf(cc.Stderr, "Open this URL in your browser:\n%s\n", u)
		})
	}

	if err != nil {
		return err
	}

	if err := sdk.Login(ctx, tok); err != nil {
		return err
	}

	cc.Logger.Info("login successful")
	cc.Statusf("Login successful. Access token valid for %s.\n",
		formatRemaining(tok.RemainingAccessTTL(time.Now()), false))

	return nil
}

func openBrowser(u string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", u)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}

	return cmd.Start()
}

func newLogoutCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Expire the session on the server and remove the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				if local {
					if err := sdk.Session.Close(ctx); err != nil {
						return err
					}

					cc.Statusf("Removed stored token.\n")

					return nil
				}

				h, err := sdk.Service.Logout(nil)
				if err != nil {
					return err
				}

				if _, err := h.Wait(ctx); err != nil {
					return err
				}

				cc.Statusf("Logged out.\n")

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "only remove the stored token, without calling the server")

	return cmd
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname,omitempty"`
	Email    string `json:"email,omitempty"`
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				h, err := sdk.Service.Me(nil)
				if err != nil {
					return err
				}

				user, err := h.Wait(ctx)
				if err != nil {
					return fmt.Errorf("fetching user: %w", err)
				}

				out := whoamiOutput{ID: user.ID, Nickname: user.Nickname()}
				if user.KakaoAccount != nil {
					out.Email = user.KakaoAccount.Email
				}

				if cc.Flags.JSON {
					return printJSON(cc.Stdout, out)
				}

				fmt.Fprintf(cc.Stdout, "User:  %s\n", out.Nickname)
				fmt.Fprintf(cc.Stdout, "ID:    %d\n", out.ID)

				if out.Email != "" {
					fmt.Fprintf(cc.Stdout, "Email: %s\n", out.Email)
				}

				return nil
			})
		},
	}
}

func newTokenInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token-info",
		Short: "Ask the server about the current access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				h, err := sdk.Service.AccessTokenInfo(nil)
				if err != nil {
					return err
				}

				info, err := h.Wait(ctx)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Stdout, info)
				}

				fmt.Fprintf(cc.Stdout, "User ID:    %d\n", info.ID)
				fmt.Fprintf(cc.Stdout, "App ID:     %d\n", info.AppID)
				fmt.Fprintf(cc.Stdout, "Expires in: %s\n",
					formatRemaining(time.Duration(info.ExpiresIn)*time.Second, false))

				return nil
			})
		},
	}
}
