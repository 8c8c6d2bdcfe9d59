// Command courseauth-probe exercises a marketplace backend end to end:
// login, route authorization, an authenticated request, and logout. With
// -stub it spins up a built-in fake backend so the full cycle can run
// without any infrastructure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"

	courseauth "github.com/learnquest/courseauth"
	"github.com/learnquest/courseauth/metrics/export/prometheus"
	"github.com/learnquest/courseauth/store"
)

func main() {
	var (
		envFile   = flag.String("env", "", "optional .env file to load before reading COURSEAUTH_* variables")
		baseURL   = flag.String("base-url", "", "backend base URL; overrides COURSEAUTH_BASE_URL")
		email     = flag.String("email", "student@example.com", "login email")
		password  = flag.String("password", "password", "login password")
		path      = flag.String("path", "/my-courses", "route to authorize and fetch after login")
		statePath = flag.String("state", "", "persist session state to this file (default: in-memory)")
		useStub   = flag.Bool("stub", false, "run against a built-in stub backend")
		timeout   = flag.Duration("timeout", 10*time.Second, "overall probe timeout")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
			os.Exit(2)
		}
	}

	cfg, err := courseauth.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad environment: %v\n", err)
		os.Exit(2)
	}
	if *baseURL != "" {
		cfg.API.BaseURL = *baseURL
	}

	var shutdown func()
	if *useStub {
		addr, stop, err := startStubBackend()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start stub backend: %v\n", err)
			os.Exit(1)
		}
		shutdown = stop
		cfg.API.BaseURL = "http://" + addr
		fmt.Printf("using stub backend at %s\n", cfg.API.BaseURL)
	}
	if shutdown != nil {
		defer shutdown()
	}

	var tokenStore store.TokenStore
	if *statePath != "" {
		fileStore, err := store.NewFile(*statePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad state path: %v\n", err)
			os.Exit(2)
		}
		tokenStore = fileStore
	} else {
		tokenStore = store.NewMemory()
	}

	ctrl, err := courseauth.New().
		WithConfig(cfg).
		WithTokenStore(tokenStore).
		WithAuditSink(courseauth.NewJSONWriterSink(os.Stderr)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if restored, err := ctrl.Rehydrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rehydrate: store unavailable: %v\n", err)
	} else if restored {
		fmt.Println("rehydrated existing session")
	}

	if !ctrl.IsAuthenticated() {
		result, err := ctrl.Login(ctx, *email, *password)
		if err != nil {
			if be, ok := courseauth.AsBackendError(err); ok {
				fmt.Fprintf(os.Stderr, "login rejected (%d): %s\n", be.Status, be.Message)
			} else {
				fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			}
			os.Exit(1)
		}
		fmt.Printf("logged in as %s %s (%s), redirect %s\n",
			result.User.FirstName, result.User.LastName, result.User.Role, result.Redirect)
	}

	decision := ctrl.Authorize(ctx, *path)
	fmt.Printf("authorize %s as %s: %s\n", *path, ctrl.Role(), decision)

	if decision == courseauth.DecisionAllowed {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.API.BaseURL+*path, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad request: %v\n", err)
			os.Exit(1)
		}
		resp, err := ctrl.Client().Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
			os.Exit(1)
		}
		resp.Body.Close()
		fmt.Printf("GET %s -> %d\n", *path, resp.StatusCode)
	}

	ctrl.Logout(ctx)
	fmt.Println("logged out")

	fmt.Println("--- metrics ---")
	fmt.Print(prometheus.NewPrometheusExporter(ctrl).Render())
}

// startStubBackend serves the minimal session lifecycle surface: any
// email/password pair logs in as a student, tokens are short-lived HS256
// JWTs, and /my-courses answers when the bearer token verifies.
func startStubBackend() (string, func(), error) {
	key := []byte("probe-stub-signing-key")

	issue := func(ttl time.Duration) string {
		claims := jwt.MapClaims{
			"role": "student",
			"exp":  time.Now().Add(ttl).Unix(),
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		return token
	}

	verify := func(r *http.Request) bool {
		auth := r.Header.Get("Authorization")
		if len(auth) < 8 || auth[:7] != "Bearer " {
			return false
		}
		_, err := jwt.Parse(auth[7:], func(*jwt.Token) (any, error) { return key, nil })
		return err == nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  issue(5 * time.Minute),
			"refresh_token": issue(24 * time.Hour),
			"user": map[string]any{
				"id": 1, "email": "student@example.com",
				"first_name": "Probe", "last_name": "Student",
				"role": "student", "is_active": true,
			},
			"enrollment_ids": []int{101},
			"favorite_ids":   []int{102},
		})
	})
	mux.HandleFunc("POST /auth/refresh-session/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  issue(5 * time.Minute),
			"refresh_token": issue(24 * time.Hour),
		})
	})
	mux.HandleFunc("DELETE /token/logout/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("GET /my-courses", func(w http.ResponseWriter, r *http.Request) {
		if !verify(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{{"id": 101, "title": "Intro to Go"}})
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}

	server := &http.Server{Handler: mux}
	go server.Serve(listener)

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
	return listener.Addr().String(), stop, nil
}
