package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for rKV servers",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfOpsPerTest       = 10000
	perfSkip             = make([]string, 0)
)

// perfResult holds the latency distribution and error count of one test
type perfResult struct {
	hist    metrics.Histogram
	elapsed time.Duration
	ops     int
	errors  int64
	skipped bool
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 10000, util.WrapString("How many operations to run per test"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfOpsPerTest = viper.GetInt("ops")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for rKV servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Ops per test: %d\n", perfOpsPerTest)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]perfResult)

	// set
	{
		getKey, iter := getKeys("set")
		result := runBenchmark("set", func(counter int) error {
			_, err := accessClient.Upsert(ctx, getKey(counter), []byte("test"))
			return err
		})
		cleanupKeys("set", iter)
		results["set"] = result
		printResult("set", result)
	}

	// set-large
	{
		largeValue := make([]byte, perfLargeValueSizeKB*1024)
		getKey, iter := getKeys("set-large")
		result := runBenchmark("set-large", func(counter int) error {
			_, err := accessClient.Upsert(ctx, getKey(counter), largeValue)
			return err
		})
		cleanupKeys("set-large", iter)
		results["set-large"] = result
		printResult("set-large", result)
	}

	// get
	{
		getKey, iter := getKeys("get")
		iter(func(k string) {
			if _, err := accessClient.Upsert(ctx, k, []byte("test")); err != nil {
				log.Printf("(get) - error setting key: %v\n", err)
			}
		})
		result := runBenchmark("get", func(counter int) error {
			_, _, err := accessClient.Get(ctx, getKey(counter))
			return err
		})
		cleanupKeys("get", iter)
		results["get"] = result
		printResult("get", result)
	}

	// get-miss
	{
		result := runBenchmark("get-miss", func(counter int) error {
			key := fmt.Sprintf("%s/get-miss-%d", perfKeyPrefix, counter%perfKeySpread)
			_, _, err := accessClient.Get(ctx, key)
			return err
		})
		results["get-miss"] = result
		printResult("get-miss", result)
	}

	// has
	{
		getKey, iter := getKeys("has")
		iter(func(k string) {
			if _, err := accessClient.Upsert(ctx, k, []byte("test")); err != nil {
				log.Printf("(has) - error setting key: %v\n", err)
			}
		})
		result := runBenchmark("has", func(counter int) error {
			_, err := accessClient.Exists(ctx, getKey(counter))
			return err
		})
		cleanupKeys("has", iter)
		results["has"] = result
		printResult("has", result)
	}

	// incr
	{
		getKey, iter := getKeys("incr")
		result := runBenchmark("incr", func(counter int) error {
			_, _, err := accessClient.Increment(ctx, getKey(counter), 1)
			return err
		})
		cleanupKeys("incr", iter)
		results["incr"] = result
		printResult("incr", result)
	}

	// mixed
	{
		getKey, iter := getKeys("mixed")
		iter(func(k string) {
			if _, err := accessClient.Upsert(ctx, k, []byte("test")); err != nil {
				log.Printf("(mixed) - error setting key: %v\n", err)
			}
		})
		result := runBenchmark("mixed", func(counter int) error {
			key := getKey(counter)
			switch counter % 4 {
			case 0: // set
				_, err := accessClient.Upsert(ctx, key, []byte("test"))
				return err
			case 1: // get
				_, _, err := accessClient.Get(ctx, key)
				return err
			case 2: // delete
				err := accessClient.Remove(ctx, key, backend.CasNone)
				if backend.IsKind(err, backend.KindNotFound) {
					return nil // racing deletes are expected here
				}
				return err
			default: // has
				_, err := accessClient.Exists(ctx, key)
				return err
			}
		})
		cleanupKeys("mixed", iter)
		results["mixed"] = result
		printResult("mixed", result)
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runBenchmark runs fn perfOpsPerTest times spread over perfNumThreads
// workers and records per-operation latencies in a histogram
func runBenchmark(test string, fn func(counter int) error) perfResult {
	if shouldSkip(test) {
		return perfResult{skipped: true}
	}

	hist := metrics.NewHistogram(metrics.NewExpDecaySample(1028, 0.015))
	var errCount int64
	var counter int64

	start := time.Now()

	var wg sync.WaitGroup
	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n := atomic.AddInt64(&counter, 1)
				if n > int64(perfOpsPerTest) {
					return
				}

				opStart := time.Now()
				err := fn(int(n))
				hist.Update(time.Since(opStart).Nanoseconds())

				if err != nil {
					atomic.AddInt64(&errCount, 1)
					log.Printf("(%s) - operation failed: %v\n", test, err)
				}
			}
		}()
	}
	wg.Wait()

	return perfResult{
		hist:    hist,
		elapsed: time.Since(start),
		ops:     perfOpsPerTest,
		errors:  errCount,
	}
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// cleanupKeys removes all keys a test created
func cleanupKeys(test string, iter func(func(string))) {
	iter(func(k string) {
		err := accessClient.Remove(context.Background(), k, backend.CasNone)
		if err != nil && !backend.IsKind(err, backend.KindNotFound) {
			log.Printf("(%s) - error deleting key: %v\n", test, err)
		}
	})
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.skipped {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	opsPerSec := float64(result.ops) / result.elapsed.Seconds()
	ps := result.hist.Percentiles([]float64{0.5, 0.9, 0.99})

	fmt.Printf("%-20s%.0f ops/sec\tp50=%s p90=%s p99=%s\terrors=%d\n",
		test,
		opsPerSec,
		time.Duration(ps[0]),
		time.Duration(ps[1]),
		time.Duration(ps[2]),
		result.errors,
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult) error {
	config := util.GetClientConfig()

	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "OpsPerSec", "P50", "P90", "P99", "Errors", "Skipped",
		"Endpoints", "TimeoutSec", "ConnectionsPerEndpoint",
		"BucketID", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count", "Ops Per Test",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var opsPerSec float64
		ps := []float64{0, 0, 0}

		if !result.skipped {
			opsPerSec = float64(result.ops) / result.elapsed.Seconds()
			ps = result.hist.Percentiles([]float64{0.5, 0.9, 0.99})
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", opsPerSec),
			time.Duration(ps[0]).String(),
			time.Duration(ps[1]).String(),
			time.Duration(ps[2]).String(),
			strconv.FormatInt(result.errors, 10),
			strconv.FormatBool(result.skipped),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.FormatInt(config.TimeoutSecond, 10),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetBucketID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfOpsPerTest),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
