package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/kakao-go/internal/kakao"
	"github.com/tonimelisma/kakao-go/internal/token"
)

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Session          string `json:"session"`
	TokenBackend     string `json:"token_backend"`
	TokenPath        string `json:"token_path,omitempty"`
	AccessValid      bool   `json:"access_valid"`
	AccessExpiresAt  string `json:"access_expires_at,omitempty"`
	AccessRemaining  string `json:"access_remaining"`
	HasRefreshToken  bool   `json:"has_refresh_token"`
	RefreshValid     bool   `json:"refresh_valid"`
	RefreshExpiresAt string `json:"refresh_expires_at,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session without contacting the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSDK(cmd, func(_ context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				out := buildStatus(sdk.Session.State().String(), sdk.Session.CurrentToken(), time.Now())
				out.TokenBackend = cc.Cfg.TokenCache.Backend
				out.TokenPath = cc.Cfg.TokenCache.Path

				if cc.Flags.JSON {
					return printJSON(cc.Stdout, out)
				}

				printStatus(cc.Stdout, out)

				return nil
			})
		},
	}
}

func buildStatus(state string, tok *token.AccessToken, now time.Time) statusOutput {
	out := statusOutput{
		Session:         state,
		AccessValid:     tok.ValidAt(now),
		AccessRemaining: formatRemaining(tok.RemainingAccessTTL(now), false),
		HasRefreshToken: tok.HasRefreshToken(),
		RefreshValid:    tok.HasValidRefreshToken(now),
	}

	if tok.AccessToken != "" {
		out.AccessExpiresAt = tok.AccessTokenExpiresAt.Format(time.RFC3339)
	}

	if tok.HasRefreshToken() && !tok.RefreshTokenExpiresAt.Equal(token.MaxTime) {
		out.RefreshExpiresAt = tok.RefreshTokenExpiresAt.Format(time.RFC3339)
	}

	return out
}

func printStatus(w io.Writer, out statusOutput) {
	fmt.Fprintf(w, "Session:       %s\n", out.Session)

	if out.TokenPath != "" {
		fmt.Fprintf(w, "Token cache:   %s (%s)\n", out.TokenBackend, out.TokenPath)
	} else {
		fmt.Fprintf(w, "Token cache:   %s\n", out.TokenBackend)
	}

	fmt.Fprintf(w, "Access token:  %s\n", validity(out.AccessValid, out.AccessRemaining))

	switch {
	case !out.HasRefreshToken:
		fmt.Fprintln(w, "Refresh token: none")
	case out.RefreshExpiresAt == "":
		fmt.Fprintf(w, "Refresh token: %s\n", validity(out.RefreshValid, "never expires"))
	default:
		fmt.Fprintf(w, "Refresh token: %s\n", validity(out.RefreshValid, "until "+out.RefreshExpiresAt))
	}
}

func validity(valid bool, detail string) string {
	if !valid {
		return "expired"
	}

	return "valid, " + detail
}
