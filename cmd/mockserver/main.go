// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command mockserver runs an in-memory admin backend for local development
// of agentlz. It prints a bearer token for the configured user on startup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentlz/agentlz-tui/internal/mockapi"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	prefix := flag.String("prefix", "/api", "route prefix")
	secret := flag.String("secret", "agentlz-mock", "token signing secret")
	user := flag.String("user", "1024", "user id to issue a token for")
	delay := flag.Duration("delay", 40*time.Millisecond, "pause between streamed chunks")
	seed := flag.Bool("seed", true, "create sample conversations")
	flag.Parse()

	gin.SetMode(gin.ReleaseMode)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	srv := mockapi.New(mockapi.Options{
		Secret:     []byte(*secret),
		Prefix:     *prefix,
		ChunkDelay: *delay,
		Logger:     logger,
	})
	if *seed {
		seedRecords(srv.Store(), *user)
	}

	token, err := srv.IssueToken(*user, 24*time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("base_url = \"http://localhost%s%s\"\n", *addr, *prefix)
	fmt.Printf("token    = \"%s\"\n", token)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("mock backend listening", "addr", *addr, "prefix", *prefix)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// seedRecords adds a short and a long conversation for user.
func seedRecords(store *mockapi.Store, user string) {
	base := time.Now().Add(-48 * time.Hour)

	store.AddRecord(user, 1, "Disk alert on db-02", []mockapi.Turn{
		{Input: "db-02 is at 91% disk, what should I check first?", Output: "Start with `du -sh /var/lib/postgresql/*` and the WAL directory.", CreatedAt: base},
		{Input: "WAL is 40G", Output: "Check for an inactive replication slot holding WAL back.", CreatedAt: base.Add(2 * time.Minute)},
	})

	var turns []mockapi.Turn
	for i := 0; i < 60; i++ {
		turns = append(turns, mockapi.Turn{
			Input:     fmt.Sprintf("Question %d about the release checklist", i+1),
			Output:    fmt.Sprintf("Answer %d: see step %d of the checklist.", i+1, i%7+1),
			CreatedAt: base.Add(24*time.Hour + time.Duration(i)*time.Minute),
		})
	}
	store.AddRecord(user, 2, "Release checklist walkthrough", turns)
}
