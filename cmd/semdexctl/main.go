// Command semdexctl runs measurement and calibration from the command line,
// without the HTTP server: read the corpus, run concepts, write parquet.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/config"
	dbRedis "github.com/kailas-cloud/semdex/internal/db/redis"
	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/index"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	"github.com/kailas-cloud/semdex/internal/repository/concepts"
	"github.com/kailas-cloud/semdex/internal/repository/corpus"
	"github.com/kailas-cloud/semdex/internal/repository/threshold"
	openaiEmb "github.com/kailas-cloud/semdex/internal/transport/openai"
	"github.com/kailas-cloud/semdex/internal/usecase/calibration"
	"github.com/kailas-cloud/semdex/internal/usecase/indicator"
	"github.com/kailas-cloud/semdex/internal/usecase/retrieval"
	"github.com/kailas-cloud/semdex/internal/usecase/topic"
	"github.com/kailas-cloud/semdex/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "semdexctl",
		Usage:   "Concept exposure measurement over earnings-call transcripts",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Config environment name (reads config/<env>.yaml)",
				Value:   "local",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "measure",
				Usage:  "Run concept measurement and write exposure records to parquet",
				Action: measureCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "concept",
						Aliases: []string{"c"},
						Usage:   "Concept id to measure (repeatable; default: all)",
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "Per-pattern k-NN depth (default: from config)",
					},
					&cli.BoolFlag{
						Name:  "split-by-segment",
						Usage: "Emit per-segment records alongside overall ones",
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output parquet path (default: <output.dir>/exposures.parquet)",
					},
				},
			},
			{
				Name:   "calibrate",
				Usage:  "Derive a threshold from a labeled-pairs JSON file",
				Action: calibrateCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "concept",
						Aliases:  []string{"c"},
						Usage:    "Concept id to calibrate",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "pairs",
						Aliases:  []string{"p"},
						Usage:    "Path to a JSON array of labeled pairs",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "rule",
						Usage: "Selection rule: youden_j, max_f1, target_fpr",
						Value: "youden_j",
					},
					&cli.Float64Flag{
						Name:  "target-fpr",
						Usage: "False positive rate budget for the target_fpr rule",
						Value: 0.05,
					},
					&cli.StringFlag{
						Name:  "version",
						Usage: "Threshold version label",
						Value: "manual",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Persist the threshold to the configured database",
					},
				},
			},
			{
				Name:   "threshold",
				Usage:  "Print a concept's stored threshold, current or by version",
				Action: thresholdCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "concept",
						Aliases:  []string{"c"},
						Usage:    "Concept id to inspect",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "version",
						Usage: "Archived version label (default: current)",
					},
				},
			},
			{
				Name:   "info",
				Usage:  "Build the region indices and print their stats",
				Action: infoCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func measureCommand(c *cli.Context) error {
	cfg, logger, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	stack, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}

	opts := topic.Options{
		KPerPattern:    cfg.Retrieval.KPerPattern,
		SplitBySegment: c.Bool("split-by-segment"),
		Concurrency:    cfg.Retrieval.Concurrency,
	}
	if k := c.Int("k"); k > 0 {
		opts.KPerPattern = k
	}

	res, err := stack.runner.Run(context.Background(), c.StringSlice("concept"), opts)
	if err != nil {
		return fmt.Errorf("measure: %w", err)
	}

	out := c.String("out")
	if out == "" {
		out = filepath.Join(cfg.Output.Dir, "exposures.parquet")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := corpus.WriteExposures(out, res.Records); err != nil {
		return fmt.Errorf("write exposures: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Wrote %d exposure records to %s\n", len(res.Records), out)
	for concept, n := range res.MatchesByConcept {
		fmt.Fprintf(os.Stderr, "  %s: %d matches\n", concept, n)
	}
	return nil
}

func calibrateCommand(c *cli.Context) error {
	cfg, logger, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	data, err := os.ReadFile(filepath.Clean(c.String("pairs")))
	if err != nil {
		return fmt.Errorf("read pairs file: %w", err)
	}
	var pairs []calibration.LabeledPair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("parse pairs file: %w", err)
	}

	rule, err := selectionRule(c.String("rule"), c.Float64("target-fpr"))
	if err != nil {
		return err
	}

	calibrator := calibration.NewCalibrator(rule, logger)
	res, err := calibrator.Calibrate(c.String("concept"), pairs, c.String("version"))
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}

	if c.Bool("save") {
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := threshold.New(store).Put(context.Background(), res.Threshold); err != nil {
			return fmt.Errorf("store threshold: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Threshold stored for %s\n", res.Threshold.ConceptID)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func thresholdCommand(c *cli.Context) error {
	cfg, logger, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	thresholds := threshold.New(store)
	ctx := context.Background()

	var tau domain.Threshold
	if v := c.String("version"); v != "" {
		tau, err = thresholds.GetVersion(ctx, c.String("concept"), v)
	} else {
		tau, err = thresholds.Get(ctx, c.String("concept"))
	}
	if err != nil {
		return fmt.Errorf("threshold: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tau)
}

func infoCommand(c *cli.Context) error {
	cfg, logger, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	stack, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}

	for _, info := range stack.infos {
		fmt.Printf("%-12s %8d paragraphs  %4d dims\n", info.Region, info.Size, info.Dimension)
	}
	return nil
}

// measureStack is the wired retrieval pipeline for CLI runs.
type measureStack struct {
	runner *topic.Runner
	infos  []index.Info
}

func loadEnv(c *cli.Context) (config.Config, *zap.Logger, error) {
	env := c.String("env")
	cfg, err := config.Load(env)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

// buildStack loads the corpus, builds per-region indices, and wires the
// measurement runner. CLI runs use in-memory thresholds: concept files carry
// their own calibrated values, and ad-hoc runs should not depend on a live
// database.
func buildStack(cfg config.Config, logger *zap.Logger) (*measureStack, error) {
	byRegion := make(map[domain.Region][]domain.ParagraphRecord, len(cfg.Corpus.Regions))
	for _, rc := range cfg.Corpus.Regions {
		region := domain.Region(rc.Name)
		records, err := corpus.ReadRegion(rc.Path, region)
		if err != nil {
			return nil, fmt.Errorf("read region %s: %w", rc.Name, err)
		}
		byRegion[region] = records
	}
	catalog := corpus.NewCatalog(byRegion)

	indices := make(map[domain.Region]retrieval.Index, len(byRegion))
	infos := make([]index.Info, 0, len(byRegion))
	for region, records := range byRegion {
		idx, err := index.BuildFromRecords(region, records)
		if err != nil {
			return nil, fmt.Errorf("build index for region %s: %w", region, err)
		}
		indices[region] = idx
		infos = append(infos, idx.Info())
	}

	vecCfg, provCfg, ok := cfg.ActiveVectorizer()
	if !ok {
		return nil, fmt.Errorf("no embedding vectorizer configured (set embedding.vectorizer)")
	}
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      vecCfg.Model,
		Dimensions: vecCfg.Dimensions,
		Provider:   vecCfg.Provider,
		Logger:     logger,
	})
	var embedder domain.BatchEmbedder = base
	if vecCfg.QueryInstruction != "" {
		embedder = domain.NewInstructionEmbedder(base, vecCfg.QueryInstruction)
	}

	searcher := retrieval.NewRegionRetriever(indices, logger)
	conceptRetriever := retrieval.NewConceptRetriever(searcher, catalog, logger)
	runner := topic.NewRunner(
		concepts.NewLoader(cfg.Concepts.Dir),
		threshold.NewMemory(),
		embedder,
		conceptRetriever,
		indicator.NewAggregator(logger),
		catalog,
		logger,
	)

	return &measureStack{runner: runner, infos: infos}, nil
}

// openStore connects to the configured database for threshold persistence.
func openStore(cfg config.Config) (*dbRedis.Store, error) {
	if !cfg.Database.Enabled {
		return nil, fmt.Errorf("database.enabled must be set to save thresholds")
	}
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	if err := store.WaitForReady(context.Background(),
		time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	return store, nil
}

func selectionRule(name string, targetFPR float64) (calibration.SelectionRule, error) {
	switch name {
	case "youden_j":
		return calibration.YoudenJ{}, nil
	case "max_f1":
		return calibration.MaxF1{}, nil
	case "target_fpr":
		return calibration.TargetFPR{Max: targetFPR}, nil
	default:
		return nil, fmt.Errorf("unknown selection rule %q", name)
	}
}
