package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the analysis tools registered.
func NewMCPServer(svc *AnalysisService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "codesweep",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_incremental",
		Description: "Run an incremental code-quality analysis. Only files whose content changed since the last run are analyzed; the report lists each task with the files its change impacts, plus cache hits and estimated time saved.",
	}, svc.AnalyzeIncremental)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assess_impact",
		Description: "Compute which files are transitively affected by modifying a set of files, using the import graph from previous analyses.",
	}, svc.AssessImpact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_dependencies",
		Description: "Traverse the import graph upstream or downstream from a file. Returns dependency chains up to the specified depth.",
	}, svc.GetDependencies)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "engine_stats",
		Description: "Return cumulative cache statistics (hit rate, time saved, runs, fallbacks) and the size of the dependency graph.",
	}, svc.EngineStats)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recent_changes",
		Description: "List the most recent file changes detected by incremental analyses (added, modified, deleted), oldest first.",
	}, svc.RecentChanges)

	return server
}

// RunMCPServer serves the analysis tools over streamable HTTP at addr until
// ctx is canceled.
func RunMCPServer(ctx context.Context, svc *AnalysisService, addr string) error {
	server := NewMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
