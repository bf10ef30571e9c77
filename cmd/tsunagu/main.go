// Package main is the Tsunagu CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/tsunagu/internal/batch"
	"github.com/hyperjump/tsunagu/internal/cli"
	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/extract"
	"github.com/hyperjump/tsunagu/internal/fileid"
	"github.com/hyperjump/tsunagu/internal/graph"
	"github.com/hyperjump/tsunagu/internal/kg"
	"github.com/hyperjump/tsunagu/internal/llm"
	"github.com/hyperjump/tsunagu/internal/match"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/rag"
	"github.com/hyperjump/tsunagu/internal/rerank"
	"github.com/hyperjump/tsunagu/internal/server"
	"github.com/hyperjump/tsunagu/internal/store"
	"github.com/hyperjump/tsunagu/internal/vector"
	"github.com/hyperjump/tsunagu/internal/watcher"
	"github.com/hyperjump/tsunagu/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/tsunagu/config.yaml"
	defaultServerURL  = "http://localhost:8001"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "tsunagu server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env supplies API keys during development; absence is not an error.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "answer":
		runAnswer()
	case "build":
		runBuild()
	case "batch":
		runBatch()
	case "status":
		runStatus()
	case "gremlin":
		runGremlin()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("tsunagu version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (retrieval chain steps, watch events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	builder := components.Builder
	st := components.Store
	watchSvc := watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			req := models.BuildRequest{SourcePath: path, Mode: string(kg.ModeAppend)}
			if _, err := builder.Build(context.Background(), "", req); err != nil {
				logger.Warn("watch build failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			err := st.DeleteDocument(context.Background(), fileid.FileDocID(path))
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
			}
		},
		logger,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	if cfg.Watch.SyncOnStart {
		// Builds from the initial scan run behind the server, not before it.
		go watchSvc.SyncExistingFiles()
	}

	var graphAdmin server.GraphAdmin
	if components.Graph != nil {
		graphAdmin = components.Graph
	}
	srv := server.NewServer(
		components.Answer,
		components.Builder,
		components.Store,
		graphAdmin,
		components.Chunks,
		components.Vids,
		cfg,
		resolvedConfigPath,
		watchSvc,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	// Waits for an in-flight build before writing, so the files are whole.
	if err := components.Builder.PersistIndices(); err != nil {
		logger.Warn("index persist failed", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printAnswerUsage prints answer subcommand usage and variant hints.
func printAnswerUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: tsunagu answer [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces. Multi-word questions work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
By default only the fused graph+vector answer is generated.
  • Use --raw to add the no-retrieval baseline for comparison.
  • Use --vector / --graph to add the single-channel answers.
  • --graph-ratio shifts evidence slots between channels: 1.0 all graph, 0.0 all vector.
  • --rerank remote uses the configured rerank service; when it is unreachable the
    answer falls back to local lexical scoring and is marked degraded.

Examples:
  tsunagu answer who maintains the payments service
  tsunagu answer "who maintains the payments service"     # same as above
  tsunagu answer --raw --vector --graph what changed in release 12
  tsunagu answer --graph-ratio 0.8 --top-k 20 which teams depend on the auth library
  tsunagu answer --custom-info "the primary region is eu-west-1" where do backups live
`)
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// retrievalDefaultsFromConfig loads config at path and returns the default top-k
// and graph ratio for answer flags. On load failure, returns 10 and 0.5.
func retrievalDefaultsFromConfig(path string) (topK int, graphRatio float64) {
	topK, graphRatio = 10, 0.5
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return topK, graphRatio
	}
	return cfg.Retrieval.TopK, cfg.Retrieval.GraphRatio
}

// reorderFlagsFirst moves any flags (and their values) that appear after the
// positional arguments to the front of the slice so that flag.Parse() sees
// them. Go's flag package stops at the first non-flag argument, so
// "tsunagu answer \"question\" -top-k 20" would otherwise leave -top-k unparsed.
func reorderFlagsFirst(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAnswer() {
	answerArgs := reorderFlagsFirst(os.Args[2:])
	configPath := configPathFromArgs(answerArgs, defaultConfigPath)
	defaultTopK, defaultRatio := retrievalDefaultsFromConfig(configPath)

	fs := flag.NewFlagSet("answer", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer in-process when the server is not running)")
	raw := fs.Bool("raw", false, "include the no-retrieval baseline answer")
	vectorOnly := fs.Bool("vector", false, "include the vector-channel answer")
	graphOnly := fs.Bool("graph", false, "include the graph-channel answer")
	graphVector := fs.Bool("graph-vector", true, "include the fused graph+vector answer")
	topK := fs.Int("top-k", defaultTopK, "merged evidence count")
	graphRatio := fs.Float64("graph-ratio", defaultRatio, "share of evidence slots reserved for graph results (0..1)")
	rerankMethod := fs.String("rerank", "lexical", "rerank method: lexical or remote")
	nearFirst := fs.Bool("near-neighbor-first", false, "prefer closer vector neighbors on equal rank")
	customInfo := fs.String("custom-info", "", "priority information pinned ahead of retrieved evidence")
	promptPath := fs.String("prompt", "", "file with a custom answer prompt template")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one variant per line), or json (parseable)")
	fs.Usage = func() { printAnswerUsage(fs) }
	_ = fs.Parse(answerArgs)

	if fs.NArg() < 1 {
		printAnswerUsage(fs)
		os.Exit(1)
	}
	question := buildQuestion(fs.Args())
	if question == "" {
		printAnswerUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	req := models.AnswerRequest{
		Question:           question,
		RawAnswer:          *raw,
		VectorOnly:         *vectorOnly,
		GraphOnly:          *graphOnly,
		GraphVector:        *graphVector,
		GraphRatio:         *graphRatio,
		TopK:               *topK,
		RerankMethod:       models.RerankMethod(*rerankMethod),
		NearNeighborFirst:  *nearFirst,
		CustomPriorityInfo: *customInfo,
	}
	if *promptPath != "" {
		b, err := os.ReadFile(*promptPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read prompt file: %v\n", err)
			os.Exit(1)
		}
		req.AnswerPrompt = string(b)
	}

	if *serverURL != "" {
		// The HTTP API shares the server's warm indices and avoids opening a
		// second handle on the same SQLite database.
		response, err := answerViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Answer failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteAnswer(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// In-process mode (when the server is not running).
	cfg, _, err := loadConfig(*configPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	response, err := components.Answer.Answer(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Answer failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func answerViaHTTP(serverURL string, req models.AnswerRequest) (*models.AnswerResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/answer", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.AnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	mode := fs.String("mode", string(kg.ModeAppend), "build mode: test, append, rebuild, or rebuild-vector")
	title := fs.String("title", "", "document title (default: file name)")
	text := fs.String("text", "", "inline source text instead of a file")
	schemaPath := fs.String("schema", "", "graph schema JSON file")
	promptPath := fs.String("prompt", "", "file with a custom triple-extraction prompt")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	req := models.BuildRequest{Mode: *mode, Title: *title, SourceText: *text}
	if fs.NArg() > 0 {
		req.SourcePath = fs.Arg(0)
	}
	if req.SourcePath == "" && req.SourceText == "" && *mode != string(kg.ModeRebuildVector) {
		fmt.Println(`Usage: tsunagu build [flags] <file>   (or --text "...")`)
		os.Exit(1)
	}
	if ext := filepath.Ext(req.SourcePath); req.SourcePath != "" && !extract.Supported(ext) {
		fmt.Fprintf(os.Stderr, "note: unrecognized extension %q, reading the file as plain text\n", ext)
	}
	if *schemaPath != "" {
		b, err := os.ReadFile(*schemaPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read schema file: %v\n", err)
			os.Exit(1)
		}
		req.SchemaJSON = string(b)
	}
	if *promptPath != "" {
		b, err := os.ReadFile(*promptPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read prompt file: %v\n", err)
			os.Exit(1)
		}
		req.ExtractPrompt = string(b)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	result, err := components.Builder.Build(context.Background(), "", req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteBuildResult(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// batchOutputPath derives the default batch output path: questions.xlsx
// becomes questions_answers.xlsx, next to the input.
func batchOutputPath(in string) string {
	ext := filepath.Ext(in)
	if ext == "" {
		ext = ".xlsx"
	}
	return strings.TrimSuffix(in, ext) + "_answers" + ext
}

func runBatch() {
	batchArgs := reorderFlagsFirst(os.Args[2:])
	configPath := configPathFromArgs(batchArgs, defaultConfigPath)
	defaultTopK, defaultRatio := retrievalDefaultsFromConfig(configPath)

	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	outFlag := fs.String("out", "", "output .xlsx path (default: <input>_answers.xlsx)")
	raw := fs.Bool("raw", false, "include the no-retrieval baseline answer")
	vectorOnly := fs.Bool("vector", false, "include the vector-channel answer")
	graphOnly := fs.Bool("graph", false, "include the graph-channel answer")
	graphVector := fs.Bool("graph-vector", true, "include the fused graph+vector answer")
	topK := fs.Int("top-k", defaultTopK, "merged evidence count")
	graphRatio := fs.Float64("graph-ratio", defaultRatio, "share of evidence slots reserved for graph results (0..1)")
	rerankMethod := fs.String("rerank", "lexical", "rerank method: lexical or remote")
	nearFirst := fs.Bool("near-neighbor-first", false, "prefer closer vector neighbors on equal rank")
	customInfo := fs.String("custom-info", "", "priority information pinned ahead of retrieved evidence")
	_ = fs.Parse(batchArgs)

	if fs.NArg() < 1 {
		fmt.Println("Usage: tsunagu batch [flags] <questions.xlsx>")
		fmt.Println("Questions are read from the first column of the first sheet; the first row is a header.")
		os.Exit(1)
	}
	inPath := fs.Arg(0)
	outPath := *outFlag
	if outPath == "" {
		outPath = batchOutputPath(inPath)
	}

	template := models.AnswerRequest{
		RawAnswer:          *raw,
		VectorOnly:         *vectorOnly,
		GraphOnly:          *graphOnly,
		GraphVector:        *graphVector,
		GraphRatio:         *graphRatio,
		TopK:               *topK,
		RerankMethod:       models.RerankMethod(*rerankMethod),
		NearNeighborFirst:  *nearFirst,
		CustomPriorityInfo: *customInfo,
	}

	cfg, _, err := loadConfig(*configPathFlag)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	// Ctrl-C keeps the rows answered so far; the partial sheet is still saved.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := batch.NewRunner(components.Answer, logger)
	result, err := runner.Run(ctx, inPath, outPath, template)
	if err != nil {
		if result != nil && result.Answered > 0 {
			fmt.Fprintf(os.Stderr, "Batch stopped after %d of %d questions: %v\n", result.Answered, result.Rows, err)
			fmt.Fprintf(os.Stderr, "Partial results: %s\n", outPath)
		} else {
			fmt.Fprintf(os.Stderr, "Batch failed: %v\n", err)
		}
		os.Exit(1)
	}
	fmt.Printf("Answered %d of %d questions (%d failed) in %s\n", result.Answered, result.Rows, result.Failed, result.Took.Round(time.Second))
	if result.Degraded > 0 {
		fmt.Printf("note: %d answer(s) used local ranking because the remote reranker was unavailable\n", result.Degraded)
	}
	fmt.Printf("Results: %s\n", outPath)
}

// statusGraphResponse holds graph info returned by status.
type statusGraphResponse struct {
	Name     string `json:"name"`
	Vertices int64  `json:"vertices"`
	Edges    int64  `json:"edges"`
	Error    string `json:"error,omitempty"`
}

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	LLMModel            string  `json:"llm_model,omitempty"`
	EmbeddingProvider   string  `json:"embedding_provider,omitempty"`
	EmbeddingDimensions int     `json:"embedding_dimensions,omitempty"`
	ChunkSize           int     `json:"chunk_size,omitempty"`
	ChunkOverlap        int     `json:"chunk_overlap,omitempty"`
	TopK                int     `json:"top_k,omitempty"`
	GraphRatio          float64 `json:"graph_ratio,omitempty"`
	DatabasePath        string  `json:"database_path,omitempty"`
	IndexDir            string  `json:"index_dir,omitempty"`
}

// statusResponse is the shape of the GET /api/v1/status response.
type statusResponse struct {
	Documents      int64                 `json:"documents"`
	Chunks         int64                 `json:"chunks"`
	ChunkIndexSize int                   `json:"chunk_index_size"`
	VidIndexSize   int                   `json:"vid_index_size"`
	Graph          *statusGraphResponse  `json:"graph,omitempty"`
	Config         *statusConfigResponse `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read local data directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		docCount, err := components.Store.CountDocuments(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		chunkCount, err := components.Store.CountChunks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count chunks failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Documents:      docCount,
			Chunks:         chunkCount,
			ChunkIndexSize: components.Chunks.Size(),
			VidIndexSize:   components.Vids.Size(),
			Config: &statusConfigResponse{
				LLMModel:            cfg.LLM.Model,
				EmbeddingProvider:   cfg.Embedding.Provider,
				EmbeddingDimensions: cfg.Embedding.Dimensions,
				ChunkSize:           cfg.Build.ChunkSize,
				ChunkOverlap:        cfg.Build.ChunkOverlap,
				TopK:                cfg.Retrieval.TopK,
				GraphRatio:          cfg.Retrieval.GraphRatio,
				DatabasePath:        cfg.Storage.DatabasePath,
				IndexDir:            cfg.Index.Dir,
			},
		}
		if components.Graph != nil {
			g := &statusGraphResponse{Name: components.Graph.GraphName()}
			gctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			vertices, edges, err := components.Graph.Counts(gctx)
			cancel()
			if err != nil {
				g.Error = err.Error()
			} else {
				g.Vertices = vertices
				g.Edges = edges
			}
			status.Graph = g
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:         %d   # source documents built into the graph\n", status.Documents)
		fmt.Printf("chunks:            %d   # stored text chunks\n", status.Chunks)
		fmt.Printf("chunk_index_size:  %d   # chunk embeddings in the vector index\n", status.ChunkIndexSize)
		fmt.Printf("vid_index_size:    %d   # vertex-id embeddings in the vector index\n", status.VidIndexSize)
		if status.Graph != nil {
			fmt.Println()
			fmt.Println("# graph")
			fmt.Printf("name:              %s\n", status.Graph.Name)
			if status.Graph.Error != "" {
				fmt.Printf("error:             %s\n", status.Graph.Error)
			} else {
				fmt.Printf("vertices:          %d\n", status.Graph.Vertices)
				fmt.Printf("edges:             %d\n", status.Graph.Edges)
			}
		}
		if status.Config != nil {
			fmt.Println()
			fmt.Println("# configuration")
			fmt.Printf("llm_model:         %s\n", status.Config.LLMModel)
			fmt.Printf("embedding:         %s (%d dims)\n", status.Config.EmbeddingProvider, status.Config.EmbeddingDimensions)
			fmt.Printf("chunking:          %d words, %d overlap\n", status.Config.ChunkSize, status.Config.ChunkOverlap)
			fmt.Printf("retrieval:         top_k %d, graph_ratio %.2f\n", status.Config.TopK, status.Config.GraphRatio)
			if status.Config.DatabasePath != "" {
				fmt.Printf("database_path:     %s\n", status.Config.DatabasePath)
			}
			if status.Config.IndexDir != "" {
				fmt.Printf("index_dir:         %s\n", status.Config.IndexDir)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runGremlin() {
	gremlinArgs := reorderFlagsFirst(os.Args[2:])
	fs := flag.NewFlagSet("gremlin", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = query the graph directly)")
	_ = fs.Parse(gremlinArgs)

	if fs.NArg() < 1 {
		fmt.Println("Usage: tsunagu gremlin [flags] <query>")
		fmt.Println(`Example: tsunagu gremlin "g.V().limit(10)"`)
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: tsunagu gremlin [flags] <query>")
		os.Exit(1)
	}

	var result json.RawMessage
	if *serverURL != "" {
		res, err := gremlinViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Gremlin failed: %v\n", err)
			os.Exit(1)
		}
		result = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		if cfg.Graph.Disabled {
			fmt.Fprintln(os.Stderr, "Graph is disabled in config")
			os.Exit(1)
		}
		client, err := graph.NewClient(
			cfg.Graph.URL,
			cfg.Graph.Name,
			cfg.Graph.Username,
			cfg.Graph.Password,
			graph.WithTimeout(time.Duration(cfg.Graph.TimeoutSeconds)*time.Second),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create graph client: %v\n", err)
			os.Exit(1)
		}
		res, err := client.Gremlin(context.Background(), query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Gremlin failed: %v\n", err)
			os.Exit(1)
		}
		result = res
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return
	}
	fmt.Println(pretty.String())
}

func gremlinViaHTTP(serverURL, query string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/gremlin", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Result, nil
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: tsunagu watch <add|remove|list> [path]")
		fmt.Println("  tsunagu watch add <path>     Add directory to watch")
		fmt.Println("  tsunagu watch remove <path>  Remove directory from watch")
		fmt.Println("  tsunagu watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: tsunagu watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: tsunagu watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Store     *store.Store
	Embedder  embedding.Embedder
	Generator llm.Generator
	Graph     *graph.Client
	Matcher   *match.Matcher
	Chunks    *vector.Handle
	Vids      *vector.Handle
	Answer    *rag.Service
	Builder   *kg.Builder
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Matcher != nil {
		_ = c.Matcher.Close()
	}
}

// loadIndex loads a persisted index pair, starting empty when the pair is
// missing, unreadable, or was written with a different embedding dimension.
func loadIndex(dir, name string, dims int, logger *zap.Logger) (*vector.FlatIndex, error) {
	idx, err := kg.LoadOrNew(dir, name, dims)
	if err != nil {
		logger.Warn("index load failed, starting empty",
			zap.String("name", name),
			zap.Error(err))
		return vector.New(dims)
	}
	if idx.Dimension() != dims {
		logger.Warn("index dimension mismatch, starting empty",
			zap.String("name", name),
			zap.Int("index_dimensions", idx.Dimension()),
			zap.Int("configured_dimensions", dims))
		return vector.New(dims)
	}
	return idx, nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	st, err := store.New(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		openaiEmbedder, err := embedding.NewOpenAIEmbedder(
			os.Getenv(cfg.Embedding.APIKeyEnv),
			cfg.Embedding.BaseURL,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embedder: %w", err)
		}
		embedder = openaiEmbedder
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			// Mock keeps everything runnable without the model file; its
			// vectors are deterministic hashes, not meaningful embeddings.
			logger.Warn("onnx embedder unavailable, using mock embeddings",
				zap.String("model_path", cfg.Embedding.ModelPath),
				zap.Error(err))
			embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		} else {
			embedder = onnxEmbedder
		}
	}

	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		logger.Warn("LLM API key not set, generation will fail",
			zap.String("env", cfg.LLM.APIKeyEnv))
	}
	generator, err := llm.NewOpenAIGenerator(apiKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.MaxTokens, cfg.LLM.Temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	var graphClient *graph.Client
	if !cfg.Graph.Disabled {
		graphClient, err = graph.NewClient(
			cfg.Graph.URL,
			cfg.Graph.Name,
			cfg.Graph.Username,
			cfg.Graph.Password,
			graph.WithLogger(logger),
			graph.WithTimeout(time.Duration(cfg.Graph.TimeoutSeconds)*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize graph client: %w", err)
		}
	}

	chunkIdx, err := loadIndex(cfg.Index.Dir, kg.ChunkIndexName, cfg.Embedding.Dimensions, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunk index: %w", err)
	}
	vidIdx, err := loadIndex(cfg.Index.Dir, kg.VidIndexName, cfg.Embedding.Dimensions, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vid index: %w", err)
	}
	chunks := vector.NewHandle(chunkIdx)
	vids := vector.NewHandle(vidIdx)

	matcher, err := match.NewMatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vertex matcher: %w", err)
	}
	if graphClient != nil {
		// Seed fuzzy matching from the committed vertex set; builds refresh it.
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		ids, err := graphClient.VertexIDs(ctx, cfg.Build.FetchLimit)
		cancel()
		if err != nil {
			logger.Warn("vertex matcher not seeded, graph unreachable", zap.Error(err))
		} else if err := matcher.Rebuild(ids); err != nil {
			logger.Warn("vertex matcher seed failed", zap.Error(err))
		} else if len(ids) > 0 {
			logger.Info("vertex matcher seeded", zap.Int("vertices", len(ids)))
		}
	}

	var remote rerank.Scorer
	if cfg.Rerank.URL != "" {
		remoteScorer, err := rerank.NewRemote(
			cfg.Rerank.URL,
			os.Getenv(cfg.Rerank.APIKeyEnv),
			cfg.Rerank.Model,
			time.Duration(cfg.Rerank.TimeoutSeconds)*time.Second,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize reranker: %w", err)
		}
		remote = remoteScorer
	}

	// A nil *graph.Client must become a nil interface value, not an interface
	// holding a nil pointer.
	var graphReader rag.GraphReader
	var graphStore kg.GraphStore
	if graphClient != nil {
		graphReader = graphClient
		graphStore = graphClient
	}

	answer := rag.NewService(embedder, generator, graphReader, matcher, chunks, vids, remote, logger, &rag.ServiceOptions{
		MaxKeywords:    cfg.Retrieval.MaxKeywords,
		TopKPerKeyword: cfg.Retrieval.TopKPerKeyword,
		GraphDepth:     cfg.Retrieval.GraphDepth,
		MaxGraphItems:  cfg.Retrieval.MaxGraphItems,
	})
	builder := kg.NewBuilder(embedder, generator, graphStore, st, extract.NewExtractor(), chunks, vids, matcher, logger, &kg.BuilderOptions{
		ChunkSize:    cfg.Build.ChunkSize,
		ChunkOverlap: cfg.Build.ChunkOverlap,
		FetchLimit:   cfg.Build.FetchLimit,
		IndexDir:     cfg.Index.Dir,
	})

	return &Components{
		Store:     st,
		Embedder:  embedder,
		Generator: generator,
		Graph:     graphClient,
		Matcher:   matcher,
		Chunks:    chunks,
		Vids:      vids,
		Answer:    answer,
		Builder:   builder,
	}, nil
}

func printUsage() {
	fmt.Println(`tsunagu - Graph + vector retrieval over your documents

Usage:
  tsunagu server [flags]             Start the HTTP server
  tsunagu answer [flags] <question>  Answer a question from the knowledge graph
  tsunagu build [flags] <file>       Build the knowledge graph from a document
  tsunagu batch [flags] <file.xlsx>  Answer a spreadsheet of questions
  tsunagu status [flags]             Show store/index/graph status
  tsunagu gremlin [flags] <query>    Run a raw gremlin query against the graph
  tsunagu watch <add|remove|list>    Manage watched directories
  tsunagu version                    Show version
  tsunagu help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tsunagu/config.yaml)
  --debug            Enable debug logging (retrieval chain steps, watch events, etc.)

Answer Flags:
  --config string        Config file path (for in-process mode; also supplies flag defaults)
  --server string        Server URL (default: http://localhost:8001). Use empty (--server "") for in-process answering.
  --raw                  Include the no-retrieval baseline answer
  --vector / --graph     Include the single-channel answers
  --graph-vector         Include the fused graph+vector answer (default: true)
  --top-k int            Merged evidence count (default from config)
  --graph-ratio float    Share of evidence slots for graph results, 0..1 (default from config)
  --rerank string        Rerank method: lexical or remote (default: lexical)
  --custom-info string   Priority information pinned ahead of retrieved evidence
  --output string        Output format: text, compact, or json (default: text)

Build Flags:
  --config string    Config file path
  --mode string      test, append, rebuild, or rebuild-vector (default: append)
  --text string      Inline source text instead of a file
  --schema string    Graph schema JSON file
  --prompt string    Custom triple-extraction prompt file
  --output string    Output format: text or json (default: text)

Batch Flags:
  --out string       Output .xlsx path (default: <input>_answers.xlsx)
  (plus the same variant flags as answer)

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8001). Use empty (--server "") for direct access.
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8001)

Examples:
  tsunagu server
  tsunagu build handbook.pdf
  tsunagu build --mode rebuild --schema schema.json corpus.txt
  tsunagu answer "who maintains the payments service"
  tsunagu answer --raw --vector --graph "what changed in release 12"
  tsunagu batch questions.xlsx
  tsunagu status --output json
  tsunagu gremlin "g.V().limit(10)"
  tsunagu watch add /path/to/docs`)
}
