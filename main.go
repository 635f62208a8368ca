// Command soundcloud-jam starts the local jam agent.
//
// It supports two modes:
//  1. "agent" (default) – runs the HTTP server exposing REST API, the local WebSocket hub, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Flags control the listen address, config file, state file, jam server URL,
// debug logging, version output, and optional ngrok tunneling for remote
// control of the agent during development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/noobtra/soundcloud-jam/api"
	"github.com/noobtra/soundcloud-jam/jam/config"
	"github.com/noobtra/soundcloud-jam/jam/coordinator"
	"github.com/noobtra/soundcloud-jam/jam/protocol"
	"github.com/noobtra/soundcloud-jam/jam/state"
	"github.com/noobtra/soundcloud-jam/transport/mcp"
	"github.com/noobtra/soundcloud-jam/transport/upstream"
	"github.com/noobtra/soundcloud-jam/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "SoundCloud Jam Agent"
)

// Configuration flags control how the agent starts and which services are enabled.
var (
	listenAddr   = flag.String("listen", "", "HTTP listen address (overrides config file)")
	configFile   = flag.String("config", getConfigFileDefault(), "Path to JSON config file")
	stateFile    = flag.String("state-file", "", "Path to the persisted session state file (overrides config file)")
	serverURL    = flag.String("server-url", "", "Jam server WebSocket URL (overrides config file)")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	version      = flag.Bool("version", false, "Show version information")
	ngrokEnabled = flag.Bool("ngrok", false, "Enable ngrok tunnel")
	ngrokAuth    = flag.String("ngrok-auth", "", "Ngrok auth token (or use NGROK_AUTHTOKEN env var)")
	ngrokDomain  = flag.String("ngrok-domain", "", "Custom ngrok domain (optional)")
)

// getConfigFileDefault returns the default config file path.
// It first honors the JAM_CONFIG environment variable, then falls back to "jam.json".
func getConfigFileDefault() string {
	if path := os.Getenv("JAM_CONFIG"); path != "" {
		return path
	}
	return "jam.json"
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [MODE]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s v%s\n\n", AppName, Version)
		fmt.Fprintf(os.Stderr, "Available modes:\n")
		fmt.Fprintf(os.Stderr, "  agent, http      Run the jam agent with API, WebSocket hub, and MCP endpoint (default)\n")
		fmt.Fprintf(os.Stderr, "  stdio-mcp        Run MCP stdio server with internal HTTP server\n")
		fmt.Fprintf(os.Stderr, "  mcp-stdio        Alias for stdio-mcp\n")
		fmt.Fprintf(os.Stderr, "  mcp              Alias for stdio-mcp\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                              # Run the agent on 127.0.0.1:9006\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -listen 127.0.0.1:9100       # Run the agent on another port\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -server-url ws://jam.example.com/ws  # Point at a different jam server\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s stdio-mcp                    # Run MCP stdio server\n", os.Args[0])
	}
}

// main parses flags, initializes the agent, and starts the selected mode.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	flag.Parse()

	// Show version if requested
	if *version {
		fmt.Printf("%s v%s\n", AppName, Version)
		os.Exit(0)
	}

	// Setup logging
	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}

	// Determine mode from command
	args := flag.Args()
	mode := "agent" // default
	if len(args) > 0 {
		mode = args[0]
	}

	log.Printf("Starting %s v%s (mode: %s)", AppName, Version, mode)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	coord, hub, err := initializeAgent(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize agent: %v", err)
	}

	switch mode {
	case "stdio-mcp", "mcp-stdio", "mcp":
		// Run MCP stdio server with internal HTTP server
		runStdioMCPWithInternalServer(cfg, coord, hub)
		return

	case "agent", "http":
		// Run HTTP server with API, WebSocket hub, and MCP endpoint
		runAgent(cfg, coord, hub)

	default:
		log.Fatalf("Unknown mode: %s. Use 'agent' (default) or 'stdio-mcp'", mode)
	}
}

// loadConfig builds the effective configuration from the config file plus
// any overriding flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}

	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *stateFile != "" {
		cfg.StateFile = *stateFile
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initializeAgent wires persistence, the upstream transport, the coordinator,
// and the local WebSocket hub. The transport's handlers are bound to the
// coordinator after construction, so the closures capture the variable.
func initializeAgent(cfg *config.Config) (*coordinator.Coordinator, *websocket.Hub, error) {
	persistence, err := state.NewFilePersistence(cfg.StateFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create state persistence: %w", err)
	}

	var coord *coordinator.Coordinator

	transport := upstream.NewClient(upstream.Config{
		URL:           cfg.ServerURL,
		PingInterval:  cfg.PingInterval(),
		ReconnectBase: cfg.ReconnectBase(),
		ReconnectMax:  cfg.ReconnectMax(),
		OnMessage: func(msg protocol.ServerMessage) {
			coord.HandleServerMessage(msg)
		},
		OnStateChange: func(st protocol.ConnState) {
			coord.HandleConnState(st)
		},
	})

	coord = coordinator.New(coordinator.Config{
		Transport:         transport,
		Persistence:       persistence,
		AllowedOrigin:     cfg.AllowedOrigin,
		KeepAliveInterval: cfg.KeepAliveInterval(),
	})

	hub := websocket.NewHub(coord)
	go hub.Run()

	coord.Start()

	return coord, hub, nil
}

// runAgent starts the HTTP server with the REST API, the local WebSocket hub,
// and an /mcp proxy endpoint. If ngrok is enabled (via flag or environment),
// it also provisions a public tunnel.
func runAgent(cfg *config.Config, coord *coordinator.Coordinator, hub *websocket.Hub) {
	// Create API server
	apiServer := api.NewServer(coord, hub)

	addr := cfg.ListenAddr

	// Create MCP client for the /mcp endpoint
	baseURL := fmt.Sprintf("http://%s", addr)
	mcpClient := mcp.NewClient(baseURL)

	// Create main router that combines API and MCP
	mainRouter := http.NewServeMux()

	// Mount API server at root
	mainRouter.Handle("/", apiServer)

	// Always add MCP endpoint for HTTP server
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Setup graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	// Start regular HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Printf("Agent listening on %s", addr)
		log.Printf("REST API: http://%s/api", addr)
		log.Printf("WebSocket: ws://%s/ws", addr)
		log.Printf("MCP endpoint: http://%s/mcp", addr)
		log.Printf("Jam server: %s", cfg.ServerURL)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Check if ngrok should be enabled (from flag or environment)
	ngrokShouldRun := *ngrokEnabled
	if !ngrokShouldRun {
		if envEnabled := os.Getenv("NGROK_ENABLED"); envEnabled == "true" || envEnabled == "1" {
			ngrokShouldRun = true
		}
	}

	// Start ngrok tunnel if enabled
	if ngrokShouldRun {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Get auth token from flag or environment (support both naming conventions)
			authToken := *ngrokAuth
			if authToken == "" {
				authToken = os.Getenv("NGROK_AUTHTOKEN")
				if authToken == "" {
					authToken = os.Getenv("NGROK_AUTH_TOKEN")
				}
			}

			if authToken == "" {
				log.Println("WARNING: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
				return
			}

			log.Println("Starting ngrok tunnel...")

			// Get domain from flag or environment
			domain := *ngrokDomain
			if domain == "" {
				domain = os.Getenv("NGROK_DOMAIN")
			}

			// Configure ngrok endpoint
			var tunnel ngrokConfig.Tunnel
			if domain != "" {
				tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
				log.Printf("Using custom ngrok domain: %s", domain)
			} else {
				tunnel = ngrokConfig.HTTPEndpoint()
			}

			// Start ngrok tunnel
			tun, err := ngrok.Listen(ctx,
				tunnel,
				ngrok.WithAuthtoken(authToken),
			)
			if err != nil {
				log.Printf("Failed to start ngrok tunnel: %v", err)
				return
			}
			defer func() {
				if err := tun.Close(); err != nil {
					log.Printf("Failed to close ngrok tunnel: %v", err)
				}
			}()

			ngrokURL := tun.URL()
			log.Printf("Ngrok tunnel established: %s", ngrokURL)
			log.Printf("  REST API (ngrok): %s/api", ngrokURL)
			log.Printf("  WebSocket (ngrok): %s/ws", ngrokURL)
			log.Printf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

			// Serve HTTP through ngrok tunnel
			if err := http.Serve(tun, mainRouter); err != nil && err != http.ErrServerClosed {
				log.Printf("Ngrok server error: %v", err)
			}
			log.Println("Ngrok tunnel closed")
		}()
	}

	// Wait for shutdown signal
	sig := <-stop
	log.Printf("Received signal: %v. Shutting down...", sig)
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	coord.Stop()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Println("Agent stopped")
}

// runStdioMCPWithInternalServer runs an MCP stdio server.
// It tries to reuse an external agent API at the configured listen address;
// if unavailable, it starts a minimal internal HTTP API bound to a random
// loopback port and targets that.
func runStdioMCPWithInternalServer(cfg *config.Config, coord *coordinator.Coordinator, hub *websocket.Hub) {
	var baseURL string
	var httpServer *http.Server
	var listener net.Listener

	// First, try to connect to an external agent at the configured address
	externalURL := fmt.Sprintf("http://%s", cfg.ListenAddr)
	log.Printf("Checking for external agent at %s...", externalURL)

	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/healthz")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		log.Printf("External agent found at %s, using it for MCP", externalURL)
		baseURL = externalURL
	} else {
		// No external agent found, start internal one
		log.Printf("No external agent found, starting internal HTTP server")

		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			log.Fatalf("Failed to get available port: %v", err)
		}

		internalPort := listener.Addr().(*net.TCPAddr).Port
		internalAddr := fmt.Sprintf("127.0.0.1:%d", internalPort)

		log.Printf("Starting internal HTTP server on %s for MCP stdio", internalAddr)

		apiServer := api.NewServer(coord, hub)

		httpServer = &http.Server{
			Handler: apiServer,
		}

		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.Printf("Internal HTTP server error: %v", err)
			}
		}()

		// Wait a moment for the server to be ready
		time.Sleep(100 * time.Millisecond)

		baseURL = fmt.Sprintf("http://%s", internalAddr)
	}

	// Create MCP client pointing to the selected server
	mcpClient := mcp.NewClient(baseURL)

	if baseURL == externalURL {
		log.Println("MCP stdio server ready (using external agent)")
	} else {
		log.Println("MCP stdio server ready (using internal HTTP server)")
	}

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		log.Fatalf("MCP stdio server error: %v", err)
	}
}
