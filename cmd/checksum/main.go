package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"globaleaks/backend/internal/checksum"
	"globaleaks/backend/internal/monitoring"
	"globaleaks/backend/internal/pool"
)

type result struct {
	digest string
	err    error
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 计算参数中每个文件的摘要，返回进程退出码
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("checksum", flag.ContinueOnError)
	fs.SetOutput(stderr)
	stats := fs.Bool("stats", false, "输出已处理的文件数与字节数")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(stderr, "Usage: checksum [-stats] <file>...")
		return 1
	}

	metrics := monitoring.NewMetrics()
	hasher := checksum.NewHasher(metrics)
	results := make([]result, len(paths))

	// 并发计算，按参数顺序输出
	workers := pool.NewWorkerPool(runtime.NumCPU(), len(paths), func(value any) {
		fmt.Fprintf(stderr, "checksum: worker panic: %v\n", value)
	})
	workers.Start(context.Background())
	for i, path := range paths {
		workers.Submit(func() {
			digest, err := hasher.File(path)
			results[i] = result{digest: digest, err: err}
		})
	}
	workers.Stop()

	exitCode := 0
	hashed := 0
	for i, path := range paths {
		if results[i].err != nil {
			fmt.Fprintf(stderr, "checksum: %s: %v\n", path, results[i].err)
			exitCode = 1
			continue
		}
		hashed++
		fmt.Fprintf(stdout, "%s  %s\n", results[i].digest, path)
	}

	if *stats {
		fmt.Fprintf(stderr, "checksum: %d files, %.0f bytes\n", hashed, metrics.ChecksumBytes())
	}
	return exitCode
}
