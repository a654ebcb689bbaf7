//go:build ignore

// Mints a Google Calendar OAuth token for a headless Dayflow install.
// Run with: go run scripts/get-google-token.go
//
// Reads GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET from the environment
// (or .env), drives the loopback OAuth flow in a browser, saves the
// token into the data directory's token store, and prints the
// credential id to use with POST /api/v1/connections.

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/dayflow/dayflow/internal/config"
	dsync "github.com/dayflow/dayflow/internal/sync"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Loopback redirect on a free port (Desktop OAuth standard)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Printf("Error finding available port: %v\n", err)
		os.Exit(1)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	cfg.Google.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d", port)

	oauth := dsync.NewGoogleOAuth(cfg.Google)
	if !oauth.Configured() {
		fmt.Println("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
		os.Exit(1)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			if msg := r.URL.Query().Get("error"); msg != "" {
				errChan <- fmt.Errorf("oauth error: %s", msg)
				http.Error(w, "Authorization failed: "+msg, http.StatusBadRequest)
			}
			// favicon or other noise, ignore
			return
		}
		codeChan <- code
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<!DOCTYPE html><html><body style="font-family:system-ui;text-align:center;padding-top:40vh"><h1>Connected</h1><p>You can close this window and return to the terminal.</p></body></html>`)
	})

	server := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", port), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := oauth.AuthURL("dayflow-token-helper")

	fmt.Println("\n=== Dayflow Google Calendar Setup ===")
	fmt.Printf("\nUsing redirect URI: %s\n", cfg.Google.RedirectURL)
	fmt.Println("\nOpening browser for authentication...")

	if err := openBrowser(authURL); err != nil {
		fmt.Println("\nCould not open browser automatically.")
		fmt.Println("Please open this URL manually:")
		fmt.Println(authURL)
	}

	fmt.Println("\nWaiting for authorization...")

	var code string
	select {
	case code = <-codeChan:
		fmt.Println("\nAuthorization received!")
	case err := <-errChan:
		fmt.Printf("\nError: %v\n", err)
		os.Exit(1)
	case <-time.After(5 * time.Minute):
		fmt.Println("\nTimeout waiting for authorization")
		os.Exit(1)
	}

	token, err := oauth.Exchange(context.Background(), code)
	if err != nil {
		fmt.Printf("Error exchanging code: %v\n", err)
		os.Exit(1)
	}

	tokens, err := dsync.NewTokenStore(filepath.Join(cfg.DataDir, "tokens"))
	if err != nil {
		fmt.Printf("Error opening token store: %v\n", err)
		os.Exit(1)
	}

	credentialID := uuid.New().String()
	if err := tokens.Save(credentialID, token); err != nil {
		fmt.Printf("Error saving token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n=== Success! ===")
	fmt.Printf("\nCredential saved. Register the connection with:\n\n")
	fmt.Printf("  curl -X POST http://localhost:%d/api/v1/connections \\\n", cfg.Server.Port)
	fmt.Printf("    -d '{\"provider\":\"google\",\"credential_id\":\"%s\"}'\n", credentialID)
}

// openBrowser opens a URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		if _, err := exec.LookPath("xdg-open"); err == nil {
			cmd = exec.Command("xdg-open", url)
		} else if _, err := exec.LookPath("sensible-browser"); err == nil {
			cmd = exec.Command("sensible-browser", url)
		} else {
			return fmt.Errorf("no browser found")
		}
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
