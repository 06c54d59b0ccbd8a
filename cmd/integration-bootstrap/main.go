// Signs a test account in and stores its token under .testdata/ for the
// live tests in e2e/.
//
// Usage: go run ./cmd/integration-bootstrap --app-key KEY [--code CODE]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/kakao-go/internal/kakao"
	"github.com/tonimelisma/kakao-go/internal/token"
	"github.com/tonimelisma/kakao-go/internal/tokenstore"
	"github.com/tonimelisma/kakao-go/testutil"
)

func main() {
	appKey := flag.String("app-key", os.Getenv(testutil.EnvE2EAppKey), "application REST API key")
	redirect := flag.String("redirect-uri", "http://localhost:8400/oauth", "registered loopback redirect URI")
	code := flag.String("code", "", "authorization code to exchange instead of the browser flow")
	flag.Parse()

	if err := run(*appKey, *redirect, *code); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Login successful. Token saved.")
}

func run(appKey, redirect, code string) error {
	ctx := context.Background()
	logger := slog.Default()

	path := testutil.CredentialTokenPath(testutil.FindModuleRoot("."))
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	sdk, err := kakao.New(ctx, kakao.Options{
		AppKey:      appKey,
		RedirectURL: redirect,
		TokenCache:  tokenstore.Options{Backend: tokenstore.BackendFile, Path: path},
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer sdk.Close(ctx)

	var tok *token.AccessToken

	if code != "" {
		tok, err = sdk.OAuth.Exchange(ctx, code)
	} else {
		tok, err = sdk.OAuth.LoginWithBrowser(ctx, func(string) error {
			return fmt.Errorf("no browser")
		}, func(u string) {
			fmt.Printf("Open this URL and authorize the test account:\n%s\n", u)
		})
	}

	if err != nil {
		return err
	}

	return sdk.Login(ctx, tok)
}
