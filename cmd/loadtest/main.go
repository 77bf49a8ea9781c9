package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	voucherID := flag.Int64("voucher", 1, "voucher id")

	// 超卖测试参数：N 个用户并发抢有限库存
	nUsers := flag.Int("users", 200, "distinct users")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	// 1) 不超卖测试：不同 user 并发，admitted 数应恰好等于库存
	fmt.Printf("start oversell test: voucher=%d users=%d concurrency=%d\n", *voucherID, *nUsers, *concurrency)
	results := runBuy(client, *baseURL, *voucherID, *nUsers, *concurrency)
	printSummary("oversell", results)

	// 2) 一人一单测试：同一 user 重复抢，至多 1 次成功
	fmt.Println("\nstart duplicate test: same user (10001), 20 requests")
	results2 := runBuySameUser(client, *baseURL, *voucherID, 10001, 20, 20)
	printSummary("duplicate", results2)
}

func runBuy(client *http.Client, baseURL string, voucherID int64, nUsers, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, nUsers)

	for i := 0; i < nUsers; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = buyOnce(client, baseURL, voucherID, int64(idx+1))
		}(i)
	}

	wg.Wait()
	return results
}

func runBuySameUser(client *http.Client, baseURL string, voucherID int64, userID int64, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = buyOnce(client, baseURL, voucherID, userID)
		}(i)
	}

	wg.Wait()
	return results
}

func buyOnce(client *http.Client, baseURL string, voucherID, userID int64) Result {
	body, _ := json.Marshal(map[string]int64{
		"voucher_id": voucherID,
		"user_id":    userID,
	})
	resp, err := client.Post(baseURL+"/api/seckill", "application/json", bytes.NewReader(body))
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(b)}
}

func printSummary(name string, results []Result) {
	byStatus := map[int]int{}
	errs := 0
	for _, r := range results {
		if r.Err != nil {
			errs++
			continue
		}
		byStatus[r.Status]++
	}
	fmt.Printf("[%s] total=%d errs=%d status=%v\n", name, len(results), errs, byStatus)
}
