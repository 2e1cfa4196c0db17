// Command benchmark drives the proxy with vegeta against a mock backend to
// measure relay overhead in isolation from any real model.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"

	"github.com/ephram/relay/internal/config"
	"github.com/ephram/relay/internal/server"

	_ "github.com/ephram/relay/internal/llm/selfhosted"
)

const mockPort = 9091

var mockResponse = []byte(`{
	"id": "msg_bench",
	"type": "message",
	"role": "assistant",
	"content": [{"type": "text", "text": "Benchmark response"}],
	"model": "qwen2.5-coder:7b",
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 5, "output_tokens": 3}
}`)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "Duration of the test")
	rate := flag.Int("rate", 50, "Requests per second")
	flag.Parse()

	go startMockBackend()

	cfg := &config.Config{
		Backend: "bench",
		Port:    config.AutoPort,
		Backends: map[string]config.BackendConfig{
			"bench": {
				Type: config.TypeSelfHosted,
				URL:  fmt.Sprintf("http://localhost:%d", mockPort),
			},
		},
	}

	logger, _ := zap.NewProduction(zap.IncreaseLevel(zap.ErrorLevel))
	srv, err := server.New(cfg, ".", logger)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	_, baseURL, err := srv.Start()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	}()

	waitForApp(baseURL + "/health")

	done := make(chan struct{})
	go monitorResources(done)

	fmt.Printf("Running benchmark: %s duration, %d req/s\n", *duration, *rate)

	body := []byte(`{"messages": [{"role": "user", "content": "Hello"}]}`)
	targeter := func(t *vegeta.Target) error {
		t.Method = "POST"
		t.URL = baseURL + "/v1/messages"
		t.Body = body
		t.Header = http.Header{
			"Content-Type": []string{"application/json"},
		}
		return nil
	}

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics

	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, "Benchmark") {
		metrics.Add(res)
	}
	metrics.Close()
	close(done)

	fmt.Println("--------------------------------------------------")
	fmt.Println("99th percentile: ", metrics.Latencies.P99)
	fmt.Println("Mean:            ", metrics.Latencies.Mean)
	fmt.Println("Max:             ", metrics.Latencies.Max)
	fmt.Printf("Success:         %.2f%%\n", metrics.Success*100)
	fmt.Printf("Throughput:      %.2f req/s\n", metrics.Throughput)
	fmt.Println("--------------------------------------------------")

	if len(metrics.Errors) > 0 {
		fmt.Println("Error set (first 5 unique):")
		seen := make(map[string]bool)
		count := 0
		for _, msg := range metrics.Errors {
			if !seen[msg] && count < 5 {
				fmt.Println(msg)
				seen[msg] = true
				count++
			}
		}
	}
}

func startMockBackend() {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(mockResponse)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_ = http.ListenAndServe(fmt.Sprintf(":%d", mockPort), mux)
}

func monitorResources(done chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	fmt.Println("\n--- Resource Usage ---")
	fmt.Printf("% -10s % -10s % -10s % -12s\n", "Time", "Heap(MB)", "Alloc(MB)", "Goroutines")

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			fmt.Printf("% -10s % -10.2f % -10.2f % -12d\n",
				time.Now().Format("15:04:05"),
				float64(ms.HeapInuse)/1024/1024,
				float64(ms.Alloc)/1024/1024,
				runtime.NumGoroutine(),
			)
		}
	}
}

func waitForApp(url string) {
	for i := 0; i < 20; i++ {
		resp, err := http.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Fatal("Server timed out")
}
