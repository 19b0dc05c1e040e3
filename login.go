package main

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalervo/syncdaemon/internal/secretstore"
)

func newLoginCmd() *cobra.Command {
	var (
		cookieHeader string
		csrfToken    string
		bearerToken  string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store remote credentials",
		Long: "Stores a session cookie + CSRF token, or a bearer token, in the OS " +
			"keyring (falling back to a 0600 file). --cookie requires --csrf-token " +
			"too. If both --cookie and --bearer-token are given, the bearer token " +
			"is stored; if neither is given, the bearer token is prompted for.",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger(nil)
			store := newSecretStore(logger)

			if bearerToken == "" && cookieHeader == "" {
				bearerToken = promptSecret("Bearer token: ")
			}

			creds := &secretstore.Credentials{}

			switch {
			case bearerToken != "":
				creds.BearerToken = bearerToken
			case cookieHeader != "":
				if csrfToken == "" {
					return fmt.Errorf("--cookie requires --csrf-token")
				}

				creds.Cookies = parseCookieHeader(cookieHeader)
				creds.CSRFToken = csrfToken
			default:
				return fmt.Errorf("no credentials supplied")
			}

			if err := store.Save(creds); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}

			statusf(flagQuiet, "Credentials saved.\n")

			return nil
		},
	}

	cmd.Flags().StringVar(&cookieHeader, "cookie", "", `raw "name=value; name2=value2" cookie header`)
	cmd.Flags().StringVar(&csrfToken, "csrf-token", "", "CSRF token paired with --cookie")
	cmd.Flags().StringVar(&bearerToken, "bearer-token", "", "bearer token (prompted interactively if omitted and --cookie is unset)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "logout",
		Short:                 "Remove stored remote credentials",
		Annotations:           map[string]string{skipConfigAnnotation: "true"},
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger(nil)
			store := newSecretStore(logger)

			if err := store.Clear(); err != nil && !secretstore.IsNotFound(err) {
				return fmt.Errorf("clearing credentials: %w", err)
			}

			statusf(flagQuiet, "Credentials cleared.\n")

			return nil
		},
	}
}

// parseCookieHeader splits a raw "a=b; c=d" cookie header into a map, the
// form secretstore.Credentials and CookieAuthProvider's jar-builder expect.
func parseCookieHeader(header string) map[string]string {
	cookies := make(map[string]string)

	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}

		cookies[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	return cookies
}

// jarFromCookies rebuilds an http.CookieJar from saved Credentials for the
// given base URL, mirroring how the login flow captured them.
func jarFromCookies(baseURL string, cookies map[string]string) (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	u, err := parseURLForJar(baseURL)
	if err != nil {
		return nil, err
	}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		httpCookies = append(httpCookies, &http.Cookie{Name: name, Value: value})
	}

	jar.SetCookies(u, httpCookies)

	return jar, nil
}

func parseURLForJar(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing remote base URL %q: %w", rawURL, err)
	}

	return u, nil
}

func promptSecret(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)

		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')

	return strings.TrimSpace(line)
}
