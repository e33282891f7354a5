// Package mcptools exposes verification operations as MCP tools.
package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the four verification tools
// registered.
func NewMCPServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "wavecheck",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_verification",
		Description: "Run the verification waves over files, a unified diff, or the pending markers. Later waves start only if every agent of the previous wave passed.",
	}, svc.RunVerification)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "estimate_cost",
		Description: "Estimate the USD cost of a verification without calling any model. Hybrid agents run the local scan to count flagged sections.",
	}, svc.EstimateCost)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "vote_severity",
		Description: "Classify the severity of a finding by majority vote over independent samples. Returns the decision, its confidence and whether it clears the reporting threshold.",
	}, svc.VoteSeverity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_findings",
		Description: "Query recorded findings by run session id or by file, and list the files with the most findings.",
	}, svc.QueryFindings)

	return server
}

// RunStdio serves on stdio until stdin closes or ctx is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
