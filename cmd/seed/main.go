package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gustycube/uptime-probe/internal/config"
	"github.com/gustycube/uptime-probe/internal/queue"
)

func main() {
	var file string
	var addr string
	var key string
	flag.StringVar(&file, "targets_file", "", "path to newline-separated endpoint URLs")
	flag.StringVar(&addr, "redis", "127.0.0.1:6379", "redis addr")
	flag.StringVar(&key, "key", "uptime:targets", "redis queue key")
	flag.Parse()
	if file == "" {
		fmt.Fprintln(os.Stderr, "missing -targets_file")
		os.Exit(1)
	}
	targets, err := config.LoadTargetsFile(file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	q, err := queue.NewRedis(addr, key, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "redis:", err)
		os.Exit(1)
	}
	defer q.Close()
	ctx := context.Background()
	n := 0
	for _, t := range targets {
		if err := q.Seed(ctx, t); err != nil {
			fmt.Fprintln(os.Stderr, "seed", t+":", err)
			continue
		}
		n++
	}
	fmt.Println("seeded", n, "targets into", key)
}
