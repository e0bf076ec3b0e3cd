// atsscan 在本地扫描一个或多个简历文件并输出 JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"ats-scanner/internal/config"
	"ats-scanner/internal/logger"
	"ats-scanner/internal/processor"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "atsscan: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("atsscan", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.StringP("config", "c", "", "配置文件路径，为空时使用默认配置")
	jd := flags.StringP("job-description", "j", "", "职位描述文本")
	jdFile := flags.String("job-description-file", "", "从文件读取职位描述")
	logLevel := flags.String("log-level", "warn", "日志级别")
	compact := flags.Bool("compact", false, "输出单行 JSON")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "用法: atsscan [flags] FILE [FILE...]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return fmt.Errorf("至少需要一个文件")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	logger.Init(logger.Config{Level: *logLevel, Format: "pretty", Output: stderr})

	jobDescription := *jd
	if *jdFile != "" {
		b, err := os.ReadFile(*jdFile)
		if err != nil {
			return fmt.Errorf("读取职位描述失败: %w", err)
		}
		jobDescription = string(b)
	}

	ctx := context.Background()
	// 本地扫描不连接任何存储后端
	scanner, err := processor.BuildScanner(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}

	var out any
	if flags.NArg() == 1 {
		path := flags.Arg(0)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out, err = scanner.Scan(ctx, processor.ScanRequest{Filename: path, Data: data, JobDescription: jobDescription})
		if err != nil {
			return err
		}
	} else {
		files := make([]processor.BatchFile, 0, flags.NArg())
		for _, path := range flags.Args() {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files = append(files, processor.BatchFile{Filename: path, Data: data})
		}
		out, err = scanner.ScanBatch(ctx, files, jobDescription)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
