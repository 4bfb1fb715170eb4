package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/ihtsdo/rf2release/engine/pkg/artifact"
	"github.com/ihtsdo/rf2release/engine/pkg/build"
	"github.com/ihtsdo/rf2release/engine/pkg/idgen"
	"github.com/ihtsdo/rf2release/engine/pkg/idgen/cis"
	"github.com/ihtsdo/rf2release/engine/pkg/metrics"
	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/store/backends"
	"github.com/ihtsdo/rf2release/engine/pkg/transform"
	"github.com/ihtsdo/rf2release/engine/pkg/writer"
	"github.com/ihtsdo/rf2release/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	idgenOffline = "offline"
	idgenCIS     = "cis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	envFileFlag := flag.String("env-file", ".env", "Optional file of environment variables to load before reading RF2_* overrides")
	metricsAddrFlag := flag.String("metrics-addr", "", "Address to listen on for prometheus metrics (or set RF2_METRICS_ADDR env var)")

	// Release
	inputFlag := flag.String("input", "", "Directory or s3://bucket/prefix holding the delta files to build (or set RF2_INPUT env var)")
	outputFlag := flag.String("output", "", "Directory or s3://bucket/prefix to write release files to (or set RF2_OUTPUT env var)")
	previousFlag := flag.String("previous", "", "Directory or s3://bucket/prefix of the previous published release (or set RF2_PREVIOUS env var)")
	dependencyFlag := flag.String("dependency", "", "International release an edition is built on (or set RF2_DEPENDENCY env var)")
	effectiveTimeFlag := flag.String("effective-time", "", "Release date as yyyyMMdd (or set RF2_EFFECTIVE_TIME env var)")
	firstTimeReleaseFlag := flag.Bool("first-time-release", false, "Build without a previous release")
	previousDependencyFlag := flag.String("previous-dependency-effective-time", "", "Dependency release date the previous edition was built on, as yyyyMMdd (or set RF2_PREVIOUS_DEPENDENCY_EFFECTIVE_TIME env var)")
	newFilesFlag := flag.StringSlice("new-files", nil, "Delta files published for the first time in this release")
	includeFilesFlag := flag.StringArray("include-files", nil, "Previous release files merged into a delta file, as newDelta=oldDelta,oldDelta (repeatable)")
	snapshotFilesFlag := flag.StringSlice("snapshot-files", nil, "Input Snapshot files the Delta and Full are derived from")
	emptyFirstTimeDeltaFlag := flag.Bool("empty-first-time-delta", false, "Write header-only Deltas for files released for the first time")
	betaFlag := flag.Bool("beta", false, "Prefix release file names with x")
	workbenchFixesFlag := flag.Bool("workbench-data-fixes", false, "Correct workbench authored data against the previous release (memory store only)")
	concurrencyFlag := flag.Int("concurrency", build.DefaultConcurrency, "Number of files built at once")
	maxRetriesFlag := flag.Int("max-retries", build.DefaultMaxRetries, "Re-runs of a file build after network failures")
	stagingDirFlag := flag.String("staging-dir", "", "Directory for transformed files (temporary when empty)")
	excludeDescriptorsFlag := flag.StringSlice("exclude-refset-descriptor-members", nil, "Refset descriptor member ids left out of every output")
	excludeLanguageRefsetsFlag := flag.StringSlice("exclude-language-refsets", nil, "Language refset ids left out of every output")

	// Store
	storeFlag := flag.String("store", string(backends.Memory), "Row store backend: memory, duckdb or postgres (or set RF2_STORE env var)")
	storeDSNFlag := flag.String("store-dsn", "", "DuckDB path or PostgreSQL connection string (or set RF2_STORE_DSN env var)")
	batchSizeFlag := flag.Int("batch-size", 0, "Rows per insert batch for relational stores")
	compositeKeysFlag := flag.StringArray("custom-refset-composite-key", nil, "Refset member key columns as refsetId=5,6 (repeatable, or set RF2_CUSTOM_REFSET_COMPOSITE_KEYS as refsetId=5,6|refsetId=7)")

	// Transformation and identifiers
	transformFlag := flag.Bool("transform", false, "Mint identifiers and resolve references in the input before building")
	namespaceFlag := flag.Int("namespace", rf2.InternationalNamespaceID, "Namespace identifiers are minted in")
	coreModuleFlag := flag.String("core-module", rf2.InternationalCoreModuleID, "Module id of core components")
	modelModuleFlag := flag.String("model-module", rf2.InternationalModelModuleID, "Module id of model components")
	modelConceptsFlag := flag.StringSlice("model-concept-ids", nil, "Concepts whose active components belong to the model module")
	legacyIDsFlag := flag.Bool("legacy-ids", false, "Assign CTV3IDs to new concepts")
	snomedIDsFlag := flag.Bool("snomed-ids", false, "Also assign SNOMED RT ids to new concepts")
	idgenFlag := flag.String("idgen", idgenOffline, "Identifier source: offline or cis (or set RF2_IDGEN env var)")
	cisURLFlag := flag.String("cis-url", "", "Identifier service base URL (or set RF2_CIS_URL env var)")
	cisUsernameFlag := flag.String("cis-username", "", "Identifier service username (or set RF2_CIS_USERNAME env var)")
	cisPasswordFlag := flag.String("cis-password", "", "Identifier service password (or set RF2_CIS_PASSWORD env var)")
	cisRPSFlag := flag.Float64("cis-requests-per-second", cis.DefaultRequestsPerSecond, "Identifier service request rate limit")
	idgenTriesFlag := flag.Int("idgen-max-tries", idgen.DefaultMaxTries, "Attempts per identifier service call")
	executionIDFlag := flag.String("execution-id", "", "Build id recorded with minted identifiers (defaults to the start time)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if err := godotenv.Load(*envFileFlag); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", *envFileFlag, err)
	}

	// Override flags with environment variables if set
	for env, flagValue := range map[string]*string{
		"RF2_METRICS_ADDR":   metricsAddrFlag,
		"RF2_INPUT":          inputFlag,
		"RF2_OUTPUT":         outputFlag,
		"RF2_PREVIOUS":       previousFlag,
		"RF2_DEPENDENCY":     dependencyFlag,
		"RF2_EFFECTIVE_TIME": effectiveTimeFlag,

		"RF2_PREVIOUS_DEPENDENCY_EFFECTIVE_TIME": previousDependencyFlag,
		"RF2_STORE":          storeFlag,
		"RF2_STORE_DSN":      storeDSNFlag,
		"RF2_IDGEN":          idgenFlag,
		"RF2_CIS_URL":        cisURLFlag,
		"RF2_CIS_USERNAME":   cisUsernameFlag,
		"RF2_CIS_PASSWORD":   cisPasswordFlag,
	} {
		if v := os.Getenv(env); v != "" {
			*flagValue = v
		}
	}
	if os.Getenv("RF2_FIRST_TIME_RELEASE") == "true" {
		*firstTimeReleaseFlag = true
	}
	if os.Getenv("RF2_BETA") == "true" {
		*betaFlag = true
	}
	if v := os.Getenv("RF2_CUSTOM_REFSET_COMPOSITE_KEYS"); v != "" {
		*compositeKeysFlag = append(*compositeKeysFlag, v)
	}

	if *inputFlag == "" || *outputFlag == "" {
		return errors.New("--input and --output are required")
	}
	if *workbenchFixesFlag && backends.Backend(*storeFlag) != backends.Memory {
		return fmt.Errorf("--workbench-data-fixes requires the memory store, got %q", *storeFlag)
	}
	compositeKeys, err := rf2.ParseCompositeKeys(*compositeKeysFlag...)
	if err != nil {
		return fmt.Errorf("invalid --custom-refset-composite-key: %w", err)
	}
	includedFiles, err := parseIncludedFiles(*includeFilesFlag)
	if err != nil {
		return fmt.Errorf("invalid --include-files: %w", err)
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     dsn,
			Release: version,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(5 * time.Second)
	}

	// Start metrics server
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go serveMetrics(log, *metricsAddrFlag)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	locs := &locations{log: log}
	cfg := build.Config{
		Logger:             log,
		EffectiveTime:      *effectiveTimeFlag,
		FirstTimeRelease:   *firstTimeReleaseFlag,
		NewFiles:           *newFilesFlag,
		IncludedFiles:      includedFiles,
		SnapshotFiles:      *snapshotFilesFlag,
		Beta:               *betaFlag,
		WorkbenchDataFixes: *workbenchFixesFlag,
		LegacyIDs:          *legacyIDsFlag,
		SNOMEDIDs:          *snomedIDsFlag,
		Concurrency:        *concurrencyFlag,
		MaxRetries:         *maxRetriesFlag,
		StagingDir:         *stagingDirFlag,

		PreviousDependencyEffectiveTime: *previousDependencyFlag,
		EmptyFirstTimeDelta:             *emptyFirstTimeDeltaFlag,
	}

	if cfg.Input, err = locs.open(ctx, *inputFlag); err != nil {
		return err
	}
	if cfg.Output, err = locs.create(ctx, *outputFlag); err != nil {
		return err
	}
	if *previousFlag != "" {
		if cfg.Previous, err = locs.open(ctx, *previousFlag); err != nil {
			return err
		}
	}
	if *dependencyFlag != "" {
		if cfg.Dependency, err = locs.open(ctx, *dependencyFlag); err != nil {
			return err
		}
	}

	stores, err := backends.NewFactory(backends.Config{
		Logger:             log,
		Backend:            backends.Backend(*storeFlag),
		DSN:                *storeDSNFlag,
		BatchSize:          *batchSizeFlag,
		WorkbenchDataFixes: *workbenchFixesFlag,

		CustomRefsetCompositeKeys: compositeKeys,
	})
	if err != nil {
		return err
	}
	cfg.Stores = stores

	cfg.Writer, err = writer.New(writer.Config{
		Logger:                         log,
		ExcludeRefsetDescriptorMembers: *excludeDescriptorsFlag,
		ExcludeLanguageRefsetIDs:       *excludeLanguageRefsetsFlag,
	})
	if err != nil {
		return err
	}

	if *transformFlag || *legacyIDsFlag {
		var client idgen.Client
		switch *idgenFlag {
		case idgenOffline:
			log.Warn("using offline identifiers, the release must not be published")
			client = idgen.NewOfflineClient()
		case idgenCIS:
			client, err = cis.New(cis.Config{
				Logger:            log,
				BaseURL:           *cisURLFlag,
				Username:          *cisUsernameFlag,
				Password:          *cisPasswordFlag,
				RequestsPerSecond: *cisRPSFlag,
			})
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown identifier source %q", *idgenFlag)
		}

		executionID := *executionIDFlag
		if executionID == "" {
			executionID = time.Now().UTC().Format(time.RFC3339)
		}
		cfg.Identifiers, err = idgen.NewCachedFactory(idgen.Config{
			Logger:      log,
			Client:      client,
			Namespace:   *namespaceFlag,
			ReleaseID:   *effectiveTimeFlag,
			ExecutionID: executionID,
			MaxTries:    *idgenTriesFlag,
		})
		if err != nil {
			return err
		}

		var modelConcepts map[string]struct{}
		if len(*modelConceptsFlag) > 0 {
			modelConcepts = make(map[string]struct{}, len(*modelConceptsFlag))
			for _, id := range *modelConceptsFlag {
				modelConcepts[id] = struct{}{}
			}
		}
		cfg.Transforms, err = transform.NewFactory(transform.Config{
			Logger:          log,
			EffectiveTime:   *effectiveTimeFlag,
			Identifiers:     cfg.Identifiers,
			Namespace:       *namespaceFlag,
			CoreModuleID:    *coreModuleFlag,
			ModelModuleID:   *modelModuleFlag,
			ModelConceptIDs: modelConcepts,
		})
		if err != nil {
			return err
		}
	}

	runner, err := build.NewRunner(cfg)
	if err != nil {
		return err
	}
	res, err := runner.Run(ctx)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}

	for _, p := range res.Problems {
		log.Warn("line could not be transformed", "file", p.File, "line", p.Line, "error", p.Message)
	}
	for _, f := range res.Files {
		for name, report := range f.Workarounds {
			if report == nil {
				continue
			}
			for _, problem := range report.Problems {
				log.Warn("workaround problem", "file", f.Delta, "workaround", name, "problem", problem)
			}
		}
	}
	log.Info("release built", "files", len(res.Files), "problems", len(res.Problems), "legacy_ids", res.LegacyIDs, "output", *outputFlag)
	return nil
}

func serveMetrics(log *slog.Logger, addr string) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to start prometheus metrics server listener", "error", err)
		return
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	if err := http.Serve(listener, r); err != nil {
		log.Error("failed to start prometheus metrics server", "error", err)
	}
}

type location interface {
	artifact.Source
	artifact.Sink
}

// locations opens local directories and S3 prefixes, sharing one S3 client.
type locations struct {
	log *slog.Logger
	s3  *s3.Client
}

// open returns an existing location to read from.
func (l *locations) open(ctx context.Context, loc string) (location, error) {
	if _, _, ok := parseS3URL(loc); !ok {
		return artifact.OpenDir(loc)
	}
	return l.bucket(ctx, loc)
}

// create returns a location to write to. Local directories are created.
func (l *locations) create(ctx context.Context, loc string) (location, error) {
	if _, _, ok := parseS3URL(loc); !ok {
		return artifact.NewDir(loc)
	}
	return l.bucket(ctx, loc)
}

func (l *locations) bucket(ctx context.Context, loc string) (location, error) {
	bucket, prefix, _ := parseS3URL(loc)
	if l.s3 == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		l.s3 = s3.NewFromConfig(awsCfg)
	}
	return artifact.NewS3(artifact.S3Config{
		Logger: l.log,
		Client: l.s3,
		Bucket: bucket,
		Prefix: prefix,
	})
}

// parseIncludedFiles reads newDelta=oldDelta,oldDelta entries.
func parseIncludedFiles(entries []string) (map[string][]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	files := make(map[string][]string, len(entries))
	for _, entry := range entries {
		name, included, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%q is not newDelta=oldDelta,oldDelta", entry)
		}
		for f := range strings.SplitSeq(included, ",") {
			if f = strings.TrimSpace(f); f != "" {
				files[name] = append(files[name], f)
			}
		}
		if len(files[name]) == 0 {
			return nil, fmt.Errorf("%q names no included files", entry)
		}
	}
	return files, nil
}

// parseS3URL splits s3://bucket/prefix.
func parseS3URL(loc string) (bucket, prefix string, ok bool) {
	rest, ok := strings.CutPrefix(loc, "s3://")
	if !ok || rest == "" {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, strings.Trim(prefix, "/"), true
}
