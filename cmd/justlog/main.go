// Package main provides the entry point for the JustLog command-line
// client. It signs the user in against the hosted identity provider with a
// PKCE authorization-code flow, manages the long-lived API key, and fetches
// logged entries from the backend.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/justlog-io/justlog-cli/internal/api"
	"github.com/justlog-io/justlog-cli/internal/auth"
	"github.com/justlog-io/justlog-cli/internal/browser"
	"github.com/justlog-io/justlog-cli/internal/buildinfo"
	"github.com/justlog-io/justlog-cli/internal/config"
	"github.com/justlog-io/justlog-cli/internal/logging"
	log "github.com/sirupsen/logrus"
)

// callbackWaitTimeout bounds how long a login waits for the provider
// redirect before giving up.
const callbackWaitTimeout = 5 * time.Minute

func main() {
	_ = godotenv.Load()
	logging.SetupBaseLogger()

	var (
		configPath   string
		showVersion  bool
		login        bool
		noBrowser    bool
		callbackPort int
		logout       bool
		whoami       bool
		listKeys     bool
		createKey    string
		revokeKey    string
		entriesType  string
		fromDate     string
		toDate       string
	)

	flag.StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print the version and exit")
	flag.BoolVar(&login, "login", false, "Sign in via the hosted identity provider")
	flag.BoolVar(&noBrowser, "no-browser", false, "Do not open a browser; print the URL and accept a pasted callback")
	flag.IntVar(&callbackPort, "callback-port", 0, "Override the local login callback port")
	flag.BoolVar(&logout, "logout", false, "Clear all stored credentials")
	flag.BoolVar(&whoami, "whoami", false, "Show the signed-in user")
	flag.BoolVar(&listKeys, "keys", false, "List issued API keys")
	flag.StringVar(&createKey, "create-key", "", "Create an API key with the given label")
	flag.StringVar(&revokeKey, "revoke-key", "", "Revoke the API key with the given id")
	flag.StringVar(&entriesType, "entries", "", "Fetch entries of the given type (food, exercise, weight)")
	flag.StringVar(&fromDate, "from", "", "Range start (YYYY-MM-DD), defaults to today")
	flag.StringVar(&toDate, "to", "", "Range end (YYYY-MM-DD), defaults to today")
	flag.Parse()

	if showVersion {
		fmt.Printf("justlog %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if callbackPort > 0 {
		cfg.Auth.CallbackPort = callbackPort
	}
	if cfg.RequestLog {
		if err = logging.EnableFileLogging(cfg.LogDir); err != nil {
			log.Warnf("file logging disabled: %v", err)
		}
		defer logging.CloseFileLogging()
	}

	store := auth.NewFileCredentialStore(cfg.AuthDir)
	authorizer := auth.NewAuthorizer(store)
	authorizer.OnNotice(func(message string) { fmt.Fprintln(os.Stderr, message) })
	authorizer.OnReload(func() { fmt.Fprintln(os.Stderr, "Run -login to sign in again.") })
	exchanger := auth.NewKeyExchanger(cfg, store, authorizer)
	flow := auth.NewFlow(cfg, store, exchanger)
	session := auth.NewSession(store)

	ctx := context.Background()

	switch {
	case login:
		if err = doLogin(ctx, cfg, flow, session, noBrowser); err != nil {
			log.Fatalf("login failed: %v", err)
		}
	case logout:
		session.Logout()
		fmt.Println("Signed out.")
	case whoami:
		printUser(session)
	case listKeys:
		printKeys(exchanger.ListKeys(ctx))
	case createKey != "":
		created, ok := exchanger.CreateKey(ctx, createKey)
		if !ok {
			log.Fatal("key creation failed")
		}
		fmt.Printf("Created key %s\nValue (shown once): %s\n", created.ID, created.APIKey)
	case revokeKey != "":
		if !exchanger.RevokeKey(ctx, revokeKey) {
			log.Fatal("key revocation failed")
		}
		fmt.Println("Key revoked.")
	case entriesType != "":
		client := api.NewClient(cfg, authorizer)
		if fromDate == "" && toDate == "" {
			fromDate, toDate = api.TodayRange(time.Now())
		}
		printEntries(client.GetEntries(ctx, entriesType, fromDate, toDate))
	default:
		flag.Usage()
	}
}

// doLogin runs the full interactive sign-in: authorization URL, callback
// capture (local server or pasted URL), and the code exchange.
func doLogin(ctx context.Context, cfg *config.Config, flow *auth.Flow, session *auth.Session, noBrowser bool) error {
	authURL, err := flow.BeginLogin()
	if err != nil {
		return err
	}

	var callbackURL string
	if noBrowser {
		fmt.Printf("Visit the following URL to sign in:\n%s\n", authURL)
		callbackURL, err = promptLine("Paste the callback URL here: ")
		if err != nil {
			return err
		}
	} else {
		server := auth.NewCallbackServer(cfg.Auth.CallbackPort)
		if err = server.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if stopErr := server.Stop(stopCtx); stopErr != nil {
				log.Warnf("callback server stop error: %v", stopErr)
			}
		}()

		fmt.Println("Opening browser for sign-in")
		if !browser.IsAvailable() {
			fmt.Printf("No browser available. Visit the following URL to sign in:\n%s\n", authURL)
		} else if err = browser.OpenURL(authURL); err != nil {
			log.Warnf("failed to open browser automatically: %v", err)
			fmt.Printf("Visit the following URL to sign in:\n%s\n", authURL)
		}

		fmt.Println("Waiting for sign-in callback...")
		callbackURL, err = server.WaitForCallback(callbackWaitTimeout)
		if err != nil {
			return err
		}
	}

	if !flow.CompleteCallback(ctx, callbackURL) {
		return fmt.Errorf("sign-in did not complete")
	}

	if user, ok := session.CurrentUser(); ok {
		fmt.Printf("Signed in as %s <%s>\n", user.Name, user.Email)
	} else {
		fmt.Println("Signed in.")
	}
	return nil
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no input")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func printUser(session *auth.Session) {
	user, ok := session.CurrentUser()
	if !ok {
		fmt.Println("Not signed in.")
		return
	}
	fmt.Printf("%s <%s>\n", user.Name, user.Email)
	if user.Picture != "" {
		fmt.Printf("Picture: %s\n", user.Picture)
	}
}

func printKeys(keys []auth.KeySummary) {
	if len(keys) == 0 {
		fmt.Println("No API keys.")
		return
	}
	for _, key := range keys {
		fmt.Printf("%s\t%s\t%s\n", key.ID, key.Label, key.CreatedAt)
	}
}

func printEntries(entries []api.Entry) {
	if len(entries) == 0 {
		fmt.Println("No entries.")
		return
	}
	for _, entry := range entries {
		switch entry.Type {
		case "food":
			fmt.Printf("%s\t%s\t%.0f kcal\n", entry.CreatedAt, entry.Description, entry.Calories)
		case "exercise":
			fmt.Printf("%s\t%s\t%.0f min\n", entry.CreatedAt, entry.Description, entry.Duration)
		default:
			fmt.Printf("%s\t%s\t%.1f %s\n", entry.CreatedAt, entry.Description, entry.Value, entry.Unit)
		}
	}
}
