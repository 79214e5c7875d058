package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// Full bull alignment on BTCUSD, as the charting tool sends it.
const samplePayload = `{
	"symbol": "BTCUSD",
	"trend_score": 8,
	"previous_score": 7,
	"price": 67250.12345678,
	"pattern": "Full Bull Alignment",
	"trend_direction": "UP",
	"total_active_timeframes": 8,
	"uptrend_count": 8,
	"downtrend_count": 0,
	"alignment_ratio": "8/8",
	"score_description": "Maximum bullish",
	"chart_timeframe": "60",
	"timeframes": {
		"tf1": {"period": "1", "status": "UP"},
		"tf2": {"period": "5", "status": "UP"},
		"tf3": {"period": "15", "status": "UP"},
		"tf4": {"period": "60", "status": "UP"},
		"tf5": {"period": "240", "status": "UP"},
		"tf6": {"period": "D", "status": "UP"},
		"tf7": {"period": "W", "status": "UP"},
		"tf8": {"period": "M", "status": "UP"}
	}
}`

func main() {
	baseURL := flag.String("url", envOr("API_URL", "http://localhost:8080"), "API base URL")
	file := flag.String("file", "", "send this JSON file instead of the built-in payload")
	symbol := flag.String("symbol", "", "override the payload symbol")
	flag.Parse()

	body := []byte(samplePayload)
	if *file != "" {
		raw, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *file, err)
		}
		body = raw
	}

	if *symbol != "" {
		var payload map[string]interface{}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			log.Fatalf("Payload is not a JSON object: %v", err)
		}
		payload["symbol"] = *symbol
		out, err := json.Marshal(payload)
		if err != nil {
			log.Fatalf("Failed to encode payload: %v", err)
		}
		body = out
	}

	fmt.Println("=== RHINO Webhook Smoke Test ===")
	fmt.Printf("Target: %s/api/v1/webhook\n", *baseURL)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Post(*baseURL+"/api/v1/webhook", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("❌ Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %d\n%s\n", resp.StatusCode, respBody)

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
	fmt.Println("✅ Signal accepted")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
