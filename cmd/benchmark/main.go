// Benchmark tool for driving a running bonusledger server with synthetic exports.
//
// Usage:
//
//	go run ./cmd/benchmark --url http://localhost:8080 --exports 20 --documents 200
//
// This tool:
//  1. Generates invoice exports for the given client codes and brand prefixes
//  2. Uploads them concurrently to POST /uploads
//  3. Polls GET /batches/{id} until every queued batch is finished
//  4. Re-uploads each export --repeat times to exercise the duplicate path
//  5. Prints latency, throughput and the summed batch reports
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/bonusledger/internal/api"
	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type options struct {
	baseURL   string
	operator  string
	clients   []string
	prefixes  []string
	exports   int
	documents int
	lines     int
	repeat    int
	workers   int
	timeout   time.Duration
	verbose   bool
}

// Results tracks benchmark totals.
type Results struct {
	Uploads        int64
	UploadErrors   int64
	Completed      int64
	Failed         int64
	UploadTimeMs   int64
	RoundTripMs    int64
	RowsRead       int64
	Created        int64
	Duplicates     int64
	Unmatched      int64
	Unregistered   int64
	DocumentsTotal int64
}

type export struct {
	name    string
	content []byte
}

func main() {
	opts := options{}

	cmd := &cobra.Command{
		Use:          "benchmark",
		Short:        "Upload synthetic exports to a bonusledger server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "url", "http://localhost:8080", "bonusledger base URL")
	f.StringVar(&opts.operator, "operator", "benchmark", "X-Operator-ID sent with uploads")
	f.StringSliceVar(&opts.clients, "clients", []string{"1001", "1002", "1003"}, "Client codes to spread documents over")
	f.StringSliceVar(&opts.prefixes, "prefixes", []string{"BR1", "BR2"}, "Brand prefixes used for item codes")
	f.IntVar(&opts.exports, "exports", 10, "Number of distinct exports")
	f.IntVar(&opts.documents, "documents", 100, "Documents per export")
	f.IntVar(&opts.lines, "lines", 5, "Lines per document")
	f.IntVar(&opts.repeat, "repeat", 1, "Extra uploads of every export (all duplicates)")
	f.IntVar(&opts.workers, "workers", 4, "Number of concurrent uploaders")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Maximum wait for a queued batch")
	f.BoolVar(&opts.verbose, "verbose", false, "Print each batch result")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.exports <= 0 || opts.documents <= 0 || opts.lines <= 0 || opts.workers <= 0 {
		return errors.New("exports, documents, lines and workers must be positive")
	}
	if len(opts.clients) == 0 || len(opts.prefixes) == 0 {
		return errors.New("at least one client and one prefix are required")
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            BONUSLEDGER BENCHMARK - Synthetic Exports          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nURL:        %s\n", opts.baseURL)
	fmt.Printf("Clients:    %s\n", strings.Join(opts.clients, ","))
	fmt.Printf("Prefixes:   %s\n", strings.Join(opts.prefixes, ","))
	fmt.Printf("Exports:    %d x %d documents x %d lines\n", opts.exports, opts.documents, opts.lines)
	fmt.Printf("Repeat:     %d\n", opts.repeat)
	fmt.Printf("Workers:    %d\n", opts.workers)
	fmt.Println()

	if err := checkHealth(opts.baseURL); err != nil {
		fmt.Printf("ERROR: bonusledger not reachable at %s: %v\n", opts.baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run ./cmd/bonusledger serve")
		return err
	}
	fmt.Println("✓ bonusledger is healthy")

	exports := generateExports(opts)
	fmt.Printf("✓ Generated %d exports\n", len(exports))

	var work []export
	for i := 0; i <= opts.repeat; i++ {
		work = append(work, exports...)
	}

	fmt.Printf("\nUploading %d files with %d workers...\n", len(work), opts.workers)
	start := time.Now()
	results := runBenchmark(work, opts)
	printResults(results, time.Since(start))
	return nil
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateExports builds invoice CSVs with document IDs unique per export, so
// only the repeated uploads hit existing fingerprints.
func generateExports(opts options) []export {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 7))
	out := make([]export, 0, opts.exports)

	for e := 0; e < opts.exports; e++ {
		var buf bytes.Buffer
		buf.WriteString("client_code,document_id,item_code,value,kind\n")
		for d := 0; d < opts.documents; d++ {
			client := opts.clients[rng.IntN(len(opts.clients))]
			doc := fmt.Sprintf("BENCH-%d-%06d", e, d)
			for l := 0; l < opts.lines; l++ {
				prefix := opts.prefixes[rng.IntN(len(opts.prefixes))]
				value := decimal.New(int64(100+rng.IntN(100000)), -2)
				fmt.Fprintf(&buf, "%s,%s,%s-%04d,%s,invoice\n", client, doc, prefix, rng.IntN(10000), value.StringFixed(2))
			}
		}
		out = append(out, export{name: fmt.Sprintf("bench-%03d.csv", e), content: buf.Bytes()})
	}
	return out
}

func runBenchmark(work []export, opts options) *Results {
	results := &Results{}

	queue := make(chan export, len(work))
	var wg sync.WaitGroup

	for i := 0; i < opts.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for ex := range queue {
				start := time.Now()
				batch, err := uploadExport(client, opts, ex)
				atomic.AddInt64(&results.UploadTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&results.Uploads, 1)
				if err == nil && !batch.Status.Finished() {
					batch, err = waitForBatch(client, opts, batch.ID)
				}
				atomic.AddInt64(&results.RoundTripMs, time.Since(start).Milliseconds())

				if err != nil {
					atomic.AddInt64(&results.UploadErrors, 1)
					if opts.verbose {
						fmt.Printf("ERROR: %s -> %v\n", ex.name, err)
					}
					continue
				}
				results.add(batch)

				if opts.verbose {
					created, dups := 0, 0
					if batch.Report != nil {
						created, dups = batch.Report.TransactionsCreated(), batch.Report.DuplicatesSkipped
					}
					fmt.Printf("%-14s | %s | %-9s | created %6d | duplicates %6d\n",
						ex.name, batch.ID, batch.Status, created, dups)
				}
			}
		}()
	}

	for _, ex := range work {
		queue <- ex
	}
	close(queue)

	wg.Wait()
	return results
}

func (r *Results) add(batch *domain.ProcessingBatch) {
	if batch.Status == domain.BatchFailed {
		atomic.AddInt64(&r.Failed, 1)
	} else {
		atomic.AddInt64(&r.Completed, 1)
	}
	if batch.Report == nil {
		return
	}
	rep := batch.Report
	atomic.AddInt64(&r.RowsRead, int64(rep.RowsRead))
	atomic.AddInt64(&r.Created, int64(rep.TransactionsCreated()))
	atomic.AddInt64(&r.Duplicates, int64(rep.DuplicatesSkipped))
	atomic.AddInt64(&r.Unmatched, int64(rep.LinesUnmatched))
	atomic.AddInt64(&r.Unregistered, int64(rep.ClientsUnregistered))
	atomic.AddInt64(&r.DocumentsTotal, int64(rep.DocumentsProcessed))
}

func uploadExport(client *http.Client, opts options, ex export) (*domain.ProcessingBatch, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("default_kind", "invoice")
	fw, err := mw.CreateFormFile("file", ex.name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(ex.content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, opts.baseURL+"/uploads", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(api.OperatorIDHeader, opts.operator)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result api.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Batch == nil {
		return nil, errors.New("response carries no batch")
	}
	return result.Batch, nil
}

func waitForBatch(client *http.Client, opts options, id string) (*domain.ProcessingBatch, error) {
	deadline := time.Now().Add(opts.timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(opts.baseURL + "/batches/" + id)
		if err != nil {
			return nil, err
		}
		var batch domain.ProcessingBatch
		err = json.NewDecoder(resp.Body).Decode(&batch)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if batch.Status.Finished() {
			return &batch, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("batch %s not finished after %v", id, opts.timeout)
}

func printResults(r *Results, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 BATCHES\n")
	fmt.Printf("   Uploads:          %d\n", r.Uploads)
	fmt.Printf("   Completed:        %d\n", r.Completed)
	fmt.Printf("   Failed:           %d\n", r.Failed)
	fmt.Printf("   Errors:           %d\n", r.UploadErrors)

	fmt.Printf("\n📈 REPORT TOTALS\n")
	fmt.Printf("   Rows read:            %d\n", r.RowsRead)
	fmt.Printf("   Documents processed:  %d\n", r.DocumentsTotal)
	fmt.Printf("   Transactions created: %d\n", r.Created)
	fmt.Printf("   Duplicates skipped:   %d\n", r.Duplicates)
	fmt.Printf("   Unmatched lines:      %d\n", r.Unmatched)
	fmt.Printf("   Unregistered clients: %d\n", r.Unregistered)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if r.Uploads > 0 {
		fmt.Printf("   Avg Upload:       %.2f ms\n", float64(r.UploadTimeMs)/float64(r.Uploads))
		fmt.Printf("   Avg Round Trip:   %.2f ms\n", float64(r.RoundTripMs)/float64(r.Uploads))
		fmt.Printf("   Throughput:       %.2f rows/sec\n", float64(r.RowsRead)/duration.Seconds())
	}

	if r.Unregistered > 0 {
		fmt.Println("\n   ⚠️  Some client codes are not registered; seed them before benchmarking")
	}
	fmt.Println()
}
