// Command mcp starts the MCP server on the selected transport.
//
// By default the server speaks the MCP stdio protocol on stdin/stdout.  With
// -transport=http it exposes the JSON-RPC endpoint on POST /mcp, an SSE
// endpoint on POST /mcp/sse and a health check on GET /health.
//
// Collaborating services are configured through the environment (or an .env
// file in the working directory):
//
//	SUPABASE_URL, SUPABASE_KEY          document store
//	OPENAI_API_KEY, OPENAI_VECTOR_STORE_ID  vector store
//	API_BASE_URL, API_KEY               backing REST API (pass-through mode)
//	MCP_API_KEY                         expected bearer token for HTTP
//	MCP_REQUIRE_AUTH                    set to require the Authorization header
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rusq/osenv/v2"

	"github.com/mokesmokane/mcp/internal/apiclient"
	"github.com/mokesmokane/mcp/internal/docstore"
	"github.com/mokesmokane/mcp/internal/mcp"
	"github.com/mokesmokane/mcp/internal/vecstore"
)

var build = "dev"

// secrets defines the names of the supported secret files that we load our
// secrets from.
var secrets = []string{".env", ".env.txt", "secrets.txt"}

type params struct {
	transport    string
	listen       string
	verbose      bool
	printVersion bool

	token       string
	requireAuth bool
}

func main() {
	loadSecrets(secrets)

	p := parseCmdLine(os.Args[1:])
	if p.printVersion {
		fmt.Println(build)
		return
	}

	lvl := slog.LevelInfo
	if p.verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, p); err != nil {
		slog.Error("server terminated", "error", err)
		os.Exit(1)
	}
}

func loadSecrets(files []string) {
	for _, f := range files {
		godotenv.Load(f)
	}
}

func parseCmdLine(args []string) params {
	var p params
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			fs.Output(),
			"MCP server, %s\n\nUsage:  %s [flags]\n\n",
			build, filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	fs.StringVar(&p.transport, "transport", string(mcp.TransportStdio), "MCP transport: \"stdio\" or \"http\"")
	fs.StringVar(&p.listen, "listen", "127.0.0.1:8000", "address to listen on when -transport=http")
	fs.StringVar(&p.token, "token", osenv.Secret("MCP_API_KEY", ""), "bearer `token` expected on HTTP requests (environment: MCP_API_KEY)")
	fs.BoolVar(&p.requireAuth, "require-auth", osenv.Value("MCP_REQUIRE_AUTH", "") != "", "reject HTTP requests without an Authorization header (environment: MCP_REQUIRE_AUTH)")
	fs.BoolVar(&p.verbose, "v", false, "verbose logging")
	fs.BoolVar(&p.printVersion, "version", false, "print version and exit")
	fs.Parse(args)
	return p
}

func run(ctx context.Context, p params) error {
	srv := mcp.New(
		mcp.Config{
			Token:       p.token,
			RequireAuth: p.requireAuth,
		},
		mcp.WithStore(docstore.New(
			osenv.Value("SUPABASE_URL", ""),
			osenv.Secret("SUPABASE_KEY", ""),
		)),
		mcp.WithUploader(vecstore.New(
			osenv.Secret("OPENAI_API_KEY", ""),
			osenv.Value("OPENAI_VECTOR_STORE_ID", ""),
		)),
		mcp.WithAPIClient(apiclient.New(
			osenv.Value("API_BASE_URL", ""),
			osenv.Secret("API_KEY", ""),
		)),
	)

	switch mcp.Transport(p.transport) {
	case mcp.TransportStdio:
		return srv.ServeStdio(ctx)
	case mcp.TransportHTTP:
		return srv.ServeHTTP(ctx, p.listen)
	default:
		return fmt.Errorf("unknown transport %q, must be %q or %q", p.transport, mcp.TransportStdio, mcp.TransportHTTP)
	}
}
