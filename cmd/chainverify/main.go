// chainverify replays a persisted audit chain and reports the first
// broken link. Exit codes: 0 valid, 1 corruption detected, 2 usage or
// connection error.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/certiview/certiview/internal/platform/audit"
	"github.com/certiview/certiview/internal/platform/clock"
)

func main() {
	databaseURL := flag.String("database-url", os.Getenv("CERTIVIEW_DATABASE_URL"), "postgres connection string")
	timeout := flag.Duration("timeout", 2*time.Minute, "verification timeout")
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "usage: chainverify -database-url <dsn> (or set CERTIVIEW_DATABASE_URL)")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(2)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ping database: %v\n", err)
		os.Exit(2)
	}

	store := audit.NewPostgresStore(db, clock.RealClock{})
	result, err := audit.Verify(ctx, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify chain: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("checked %d entries: %s\n", result.CheckedEntries, result.Message)
	if !result.Valid {
		os.Exit(1)
	}
}
