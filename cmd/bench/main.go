package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/evaluation"
	"github.com/proactive-assistant/backend/internal/llm"
	"github.com/proactive-assistant/backend/internal/metrics"
	"github.com/proactive-assistant/backend/internal/pipeline"
	"github.com/proactive-assistant/backend/internal/retrieval"
	"github.com/proactive-assistant/backend/internal/selector"
	"github.com/proactive-assistant/backend/internal/snapshot"
	"github.com/proactive-assistant/backend/pkg/config"
	appLogger "github.com/proactive-assistant/backend/pkg/logger"
	"github.com/proactive-assistant/backend/pkg/utils"
)

var benchmarkProbes = []string{
	"user is stressed about a deadline",
	"recent workout activity",
	"upcoming meeting",
	"music preferences",
	"message about an urgent update",
}

func main() {
	runs := flag.Int("runs", 0, "number of pipeline runs (0 = config benchmark.samples)")
	seed := flag.Int64("seed", 42, "snapshot generator seed")
	goldenPath := flag.String("golden", "", "optional golden set JSON path")
	variations := flag.Int("variations", 0, "golden scenario variations (0 = config default)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	ctx := context.Background()

	fmt.Println("Nudge Engine Benchmark Suite")
	fmt.Println("============================")

	// 1. Synthetic day.
	generator := snapshot.NewGenerator(*seed)
	snap := generator.GenerateDay(time.Now())
	fmt.Printf("\n1. Generated snapshot: %d calendar, %d messages, %d activity, %d media\n",
		len(snap.Calendar), len(snap.Messages), len(snap.Activity), len(snap.Media))

	// 2. Strategy benchmark.
	llmClient := llm.NewClient(llm.Options{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		HashFn:         utils.HashString,
	})

	semantic := retrieval.NewSemanticStrategy(llmClient, cfg.Retrieval.MinScore)
	structured := retrieval.NewStructuredStrategy(
		retrieval.StructuredWeights{
			Category: cfg.Retrieval.CategoryWeight,
			Time:     cfg.Retrieval.TimeWeight,
			Keyword:  cfg.Retrieval.KeywordWeight,
		},
		time.Duration(cfg.Retrieval.TimeHorizonMin)*time.Minute,
	)

	strategySelector := selector.New(semantic, structured, cfg.Selector.Margin, cfg.Retrieval.TopK)

	queries := make([]retrieval.Query, 0, len(benchmarkProbes))
	for _, probe := range benchmarkProbes {
		queries = append(queries, retrieval.Query{Probe: probe})
	}

	fmt.Println("\n2. Benchmarking retrieval strategies...")
	result, err := strategySelector.RunBenchmark(ctx, snap, queries, cfg.Benchmark.RunsPerQuery)
	if err != nil {
		appLogger.Fatal("Strategy benchmark failed", zap.Error(err))
	}

	fmt.Printf("   Semantic   - latency %.2fms, relevance %.3f\n",
		ms(result.Semantic.MeanLatency), result.Semantic.MeanTopRelevance)
	fmt.Printf("   Structured - latency %.2fms, relevance %.3f\n",
		ms(result.Structured.MeanLatency), result.Structured.MeanTopRelevance)
	fmt.Printf("   Decision: %s (margin %.2f)\n", result.Chosen, result.Margin)

	// 3. Pipeline runs.
	recorder := metrics.NewRecorder()
	pipe := pipeline.New(strategySelector, llmClient, recorder, pipeline.Options{
		TopK:           cfg.Retrieval.TopK,
		PerInputToken:  cfg.Cost.PerInputToken,
		PerOutputToken: cfg.Cost.PerOutputToken,
	})

	totalRuns := *runs
	if totalRuns <= 0 {
		totalRuns = cfg.Benchmark.Samples
	}

	fmt.Printf("\n3. Running %d nudge generations...\n", totalRuns)
	succeeded := 0
	for i := 0; i < totalRuns; i++ {
		nudge, _, err := pipe.Run(ctx, snap)
		if err != nil {
			fmt.Printf("   run %d failed: %v\n", i+1, err)
			continue
		}
		succeeded++
		if (i+1)%5 == 0 {
			fmt.Printf("   Progress: %d/%d\n", i+1, totalRuns)
		}
		_ = nudge
	}
	fmt.Printf("   %d/%d runs succeeded\n", succeeded, totalRuns)

	// 4. Metrics report.
	summary := recorder.Summarize()
	fmt.Println("\n4. Metrics report")
	fmt.Printf("   Samples:      %d\n", summary.SampleCount)
	fmt.Printf("   Mean latency: %.2fms\n", ms(summary.MeanLatency))
	fmt.Printf("   P50 latency:  %.2fms\n", ms(summary.P50Latency))
	fmt.Printf("   P95 latency:  %.2fms\n", ms(summary.P95Latency))
	fmt.Printf("   P99 latency:  %.2fms\n", ms(summary.P99Latency))
	for stage, mean := range summary.PerStageMean {
		fmt.Printf("   %-10s mean %.2fms\n", stage, ms(mean))
	}
	targetMet := summary.P95Latency <= time.Duration(cfg.Benchmark.TargetLatencyMS)*time.Millisecond
	fmt.Printf("   Target met (<%dms p95): %v\n", cfg.Benchmark.TargetLatencyMS, targetMet)
	retrieveTarget := time.Duration(cfg.Benchmark.RetrievalTargetMS) * time.Millisecond
	retrieveMet := summary.PerStageMean["retrieve"] <= retrieveTarget
	fmt.Printf("   Retrieval target met (<%dms mean): %v\n", cfg.Benchmark.RetrievalTargetMS, retrieveMet)
	fmt.Printf("   Total cost:   $%.6f\n", summary.TotalCost)
	fmt.Printf("   Mean cost:    $%.6f\n", summary.MeanCost)

	// 5. Evaluation.
	fmt.Println("\n5. Running evaluation pipeline...")
	var golden []evaluation.GoldenExample
	if *goldenPath != "" {
		golden, err = evaluation.LoadGoldenSet(*goldenPath)
		if err != nil {
			appLogger.Fatal("Failed to load golden set", zap.Error(err))
		}
	} else {
		n := *variations
		if n <= 0 {
			n = cfg.Evaluation.GoldenVariations
		}
		golden = evaluation.DefaultGoldenSet(time.Now(), n)
	}

	harness := evaluation.NewHarness(pipe, llmClient, nil)
	results := harness.Evaluate(ctx, golden)

	var sumComposite, sumSemantic, sumLexical float64
	scored := 0
	for {
		score, ok := results.Next()
		if !ok {
			break
		}
		if score.Err != nil {
			fmt.Printf("   %s failed: %v\n", score.ExampleID, score.Err)
			continue
		}
		scored++
		sumComposite += score.Composite
		sumSemantic += score.Semantic
		sumLexical += score.Lexical.LCS.F1
	}

	if scored > 0 {
		fmt.Printf("   Examples scored:     %d/%d\n", scored, len(golden))
		fmt.Printf("   Semantic similarity: %.3f\n", sumSemantic/float64(scored))
		fmt.Printf("   ROUGE-L F1:          %.3f\n", sumLexical/float64(scored))
		fmt.Printf("   Composite:           %.3f\n", sumComposite/float64(scored))
	} else {
		fmt.Println("   No examples scored")
	}

	fmt.Println("\nBenchmark suite complete.")
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
