// Copyright 2025 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command http-client traces a few requests against a local test server:
// a success, a failing status, and a request that times out.
//
// Set TRACELOG_FORMAT=json or TRACELOG_LOG_ONLY_ON_ERROR=true to see how the
// same traffic is rendered under other settings.
package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/pjscruggs/tracelog"
	"github.com/pjscruggs/tracelog/tracehttp"
)

func newServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "1" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":1,"name":"Ada"}`)
	})
	mux.HandleFunc("POST /slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	return httptest.NewServer(mux)
}

func run(ctx context.Context, baseURL string, client *http.Client) error {
	for _, path := range []string{"/users/1", "/users/2"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer example-token")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/slow", strings.NewReader(`{"wait":true}`))
	if err != nil {
		return err
	}
	if resp, err := client.Do(req); err == nil {
		_ = resp.Body.Close()
	} else {
		log.Printf("slow request failed as expected: %v", err)
	}
	return nil
}

func main() {
	server := newServer()
	defer server.Close()

	client := tracehttp.Attach(server.Client(),
		tracehttp.WithSink(tracelog.WriterSink(os.Stdout)),
		tracehttp.WithColor(tracelog.StdoutIsTerminal()),
		tracehttp.WithRedactedHeaders("Authorization"),
	)
	if err := run(context.Background(), server.URL, client); err != nil {
		log.Fatalf("run: %v", err)
	}
}
