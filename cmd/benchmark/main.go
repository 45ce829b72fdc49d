// Benchmark replays labelled PaySim transactions against the risk scoring API.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/paysim.csv -url http://localhost:8080
//
// Each row is sent to POST /v1/scores/calculate. A HIGH or CRITICAL level
// counts as an alert and is compared with the row's isFraud label.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskscore/internal/domain"
)

// PaySimTransaction represents a row from the PaySim dataset.
type PaySimTransaction struct {
	Row      int
	Step     int
	Type     string
	Amount   decimal.Decimal
	NameOrig string
	NameDest string
	IsFraud  bool
}

// ScoreRequest is the POST /v1/scores/calculate body.
type ScoreRequest struct {
	TransactionID   string          `json:"transactionId"`
	ClientID        string          `json:"clientId"`
	BeneficiaryID   string          `json:"beneficiaryId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TransactionTime time.Time       `json:"transactionTime"`
	Country         string          `json:"country"`
}

// Options control how rows become requests.
type Options struct {
	RunID    string
	Epoch    time.Time
	Currency string
	Country  string
}

// Tally tracks benchmark results.
type Tally struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64

	levelsMu sync.Mutex
	levels   map[domain.RiskLevel]int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Risk scoring base URL")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud transactions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for non-fraud (0.0-1.0)")
	country := flag.String("country", "US", "Beneficiary country sent with every transaction")
	currency := flag.String("currency", "USD", "Currency sent with every transaction")
	epoch := flag.String("epoch", "2025-01-06T00:00:00-05:00", "RFC3339 time of PaySim step 0")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/paysim.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	start, err := time.Parse(time.RFC3339, *epoch)
	if err != nil {
		fmt.Printf("ERROR: invalid -epoch: %v\n", err)
		os.Exit(1)
	}
	opts := Options{
		RunID:    strconv.FormatInt(time.Now().Unix(), 36),
		Epoch:    start,
		Currency: *currency,
		Country:  *country,
	}

	fmt.Println("RISKSCORE BENCHMARK - PaySim replay")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Service URL: %s\n", *baseURL)
	fmt.Printf("Run ID:      %s\n", opts.RunID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: service not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the service is running:")
		fmt.Println("  go run ./cmd/riskscore")
		os.Exit(1)
	}
	fmt.Println("service is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	transactions, err := readPaySimCSV(file, *limit, *fraudOnly, *sampleRate)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(transactions) == 0 {
		fmt.Println("no transactions selected")
		os.Exit(1)
	}
	fmt.Printf("loaded %d transactions\n", len(transactions))

	fraudCount := 0
	for _, tx := range transactions {
		if tx.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(transactions)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(transactions)-fraudCount, 100*float64(len(transactions)-fraudCount)/float64(len(transactions)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	tally := runBenchmark(transactions, *baseURL, opts, *workers, *verbose)
	printResults(tally, time.Since(startTime))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/v1/scores/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readPaySimCSV(r io.Reader, limit int, fraudOnly bool, sampleRate float64) ([]PaySimTransaction, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"step", "type", "amount", "nameorig", "namedest", "isfraud"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	field := func(record []string, col string) string {
		i, ok := colIndex[col]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var transactions []PaySimTransaction
	sampleCounter := 0
	row := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			continue // Skip malformed rows
		}

		isFraud := field(record, "isfraud") == "1"
		if fraudOnly && !isFraud {
			continue
		}
		if !isFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		amount, err := decimal.NewFromString(field(record, "amount"))
		if err != nil {
			continue
		}
		step, _ := strconv.Atoi(field(record, "step"))

		transactions = append(transactions, PaySimTransaction{
			Row:      row,
			Step:     step,
			Type:     field(record, "type"),
			Amount:   amount,
			NameOrig: field(record, "nameorig"),
			NameDest: field(record, "namedest"),
			IsFraud:  isFraud,
		})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

// toScoreRequest maps a PaySim row. A step is one simulated hour after opts.Epoch.
func toScoreRequest(tx PaySimTransaction, opts Options) ScoreRequest {
	return ScoreRequest{
		TransactionID:   fmt.Sprintf("paysim-%s-%d", opts.RunID, tx.Row),
		ClientID:        tx.NameOrig,
		BeneficiaryID:   tx.NameDest,
		Amount:          tx.Amount,
		Currency:        opts.Currency,
		TransactionTime: opts.Epoch.Add(time.Duration(tx.Step) * time.Hour),
		Country:         opts.Country,
	}
}

// Record adds one scored transaction to the confusion matrix.
func (t *Tally) Record(score domain.RiskScore, actual bool) {
	if actual {
		atomic.AddInt64(&t.TotalFraud, 1)
	} else {
		atomic.AddInt64(&t.TotalNonFraud, 1)
	}

	predicted := score.IsAlert()
	switch {
	case predicted && actual:
		atomic.AddInt64(&t.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&t.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&t.TrueNegatives, 1)
	default:
		atomic.AddInt64(&t.FalseNegatives, 1)
	}

	t.levelsMu.Lock()
	if t.levels == nil {
		t.levels = make(map[domain.RiskLevel]int64)
	}
	t.levels[score.Level]++
	t.levelsMu.Unlock()
}

// Precision is the share of alerts that were fraud.
func (t *Tally) Precision() float64 {
	return ratio(t.TruePositives, t.TruePositives+t.FalsePositives)
}

// Recall is the share of fraud that raised an alert.
func (t *Tally) Recall() float64 {
	return ratio(t.TruePositives, t.TruePositives+t.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (t *Tally) F1() float64 {
	p, r := t.Precision(), t.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func runBenchmark(transactions []PaySimTransaction, baseURL string, opts Options, numWorkers int, verbose bool) *Tally {
	tally := &Tally{}

	work := make(chan PaySimTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				score, err := scoreTransaction(client, baseURL, toScoreRequest(tx, opts))
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&tally.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&tally.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&tally.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: row %d -> %v\n", tx.Row, err)
					}
					continue
				}

				tally.Record(*score, tx.IsFraud)

				if verbose {
					status := "ok  "
					if score.IsAlert() != tx.IsFraud {
						status = "MISS"
					}
					fmt.Printf("%s row %-8d | Type: %-8s | Amount: %14s | Fraud: %-5v | %-8s %4d %v\n",
						status,
						tx.Row,
						tx.Type,
						tx.Amount.StringFixed(2),
						tx.IsFraud,
						score.Level,
						score.Score,
						score.ReasonCodes,
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	wg.Wait()

	return tally
}

func scoreTransaction(client *http.Client, baseURL string, req ScoreRequest) (*domain.RiskScore, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/v1/scores/calculate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var score domain.RiskScore
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return nil, err
	}
	return &score, nil
}

func printResults(t *Tally, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", t.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", t.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", t.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", t.TotalErrors)

	fmt.Printf("\nRISK LEVELS\n")
	for _, level := range []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical} {
		fmt.Printf("   %-9s %d\n", level, t.levels[level])
	}

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   ALERT     NO ALERT")
	fmt.Printf("   Actual  F   %8d   %8d   (TP, FN)\n", t.TruePositives, t.FalseNegatives)
	fmt.Printf("          NF   %8d   %8d   (FP, TN)\n", t.FalsePositives, t.TrueNegatives)

	total := t.TruePositives + t.TrueNegatives + t.FalsePositives + t.FalseNegatives

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", t.Precision())
	fmt.Printf("   Recall:     %.4f\n", t.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", t.F1())
	fmt.Printf("   Accuracy:   %.4f\n", ratio(t.TruePositives+t.TrueNegatives, total))

	if t.TotalNonFraud > 0 {
		fmt.Printf("   False Alarms:  %d / %d (%.2f%%)\n", t.FalsePositives, t.TotalNonFraud,
			100*ratio(t.FalsePositives, t.TotalNonFraud))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if t.TotalProcessed > 0 {
		fmt.Printf("   Avg Latency:      %.2f ms\n", float64(t.ProcessingTimeMs)/float64(t.TotalProcessed))
		fmt.Printf("   Throughput:       %.2f tx/sec\n", float64(t.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
