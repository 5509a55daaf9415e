// Command smoke probes a running exam studio instance end to end: it logs in
// with the provided credentials and walks the main read endpoints, reporting
// status per target. Intended for post-deploy verification.
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
	"strings"
	"time"
)

type target struct {
	Method   string
	Path     string
	Critical bool
}

type result struct {
	Target   target
	Status   int
	Duration time.Duration
	Error    error
}

var targets = []target{
	{Method: http.MethodGet, Path: "/health", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/auth/me", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/dashboard", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/exams", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/resources", Critical: false},
	{Method: http.MethodGet, Path: "/api/v1/activity", Critical: false},
	{Method: http.MethodGet, Path: "/api/v1/exams/export", Critical: false},
}

func main() {
	var (
		base       string
		identifier string
		password   string
		timeout    time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&identifier, "identifier", "", "Username or email to authenticate with")
	flag.StringVar(&password, "password", "", "Password to authenticate with")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if identifier == "" || password == "" {
		log.Fatal("both -identifier and -password are required")
	}

	client := &http.Client{Timeout: timeout}
	token, err := login(client, base, identifier, password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	var failures int
	var results []result
	for _, t := range targets {
		res := probe(client, base, token, t)
		if res.Error != nil || res.Status >= http.StatusInternalServerError || (t.Critical && res.Status != http.StatusOK) {
			if t.Critical {
				failures++
			}
		}
		results = append(results, res)
	}

	printReport(results)

	if failures > 0 {
		fmt.Printf("Critical failures: %d\n", failures)
		os.Exit(1)
	}
	fmt.Println("All critical targets passed")
}

func login(client *http.Client, base, identifier, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(base, "/") + "/api/v1/auth/login"
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", err
	}
	if envelope.Data.AccessToken == "" {
		return "", fmt.Errorf("login response carried no access token")
	}
	return envelope.Data.AccessToken, nil
}

func probe(client *http.Client, base, token string, tgt target) result {
	res := result{Target: tgt}

	url := strings.TrimRight(base, "/") + tgt.Path
	req, err := http.NewRequest(tgt.Method, url, nil)
	if err != nil {
		res.Error = err
		return res
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	res.Status = resp.StatusCode
	return res
}

func printReport(results []result) {
	for _, r := range results {
		marker := "ok"
		if r.Error != nil {
			marker = "error: " + r.Error.Error()
		} else if r.Status >= http.StatusBadRequest {
			marker = "failed"
		}
		fmt.Printf("%-6s %-28s %3d %8s %s\n", r.Target.Method, r.Target.Path, r.Status, r.Duration.Round(time.Millisecond), marker)
	}
}
