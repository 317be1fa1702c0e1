package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/blingmoon/simple-flow/flow"
	"github.com/blingmoon/simple-flow/internal/leaveflow"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	configPath  string
	jsonOutput  bool
	showMetrics bool
)

// app 一次命令执行用到的依赖
type app struct {
	config      *flow.EngineConfig
	logger      *slog.Logger
	db          *gorm.DB
	repo        *flow.GormFlowRepo
	service     *flow.FlowServiceImpl
	registry    *prometheus.Registry
	bindData    *flow.BindDataRegistry
	redisClient *redis.Client
}

// openApp 初始化失败时关闭已经打开的数据库
func openApp(configPath string) (*app, error) {
	config, err := flow.LoadEngineConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(os.Stderr)
	db, err := gorm.Open(sqlite.Open(config.DSN), &gorm.Config{})
	if err != nil {
		return nil, errors.WithMessagef(err, "open database failed, dsn: %s", config.DSN)
	}
	if err := flow.MigrateTables(db); err != nil {
		closeDB(db, logger)
		return nil, errors.WithMessage(err, "migrate tables failed")
	}
	bindData := flow.NewBindDataRegistry()
	if err := leaveflow.Register(bindData); err != nil {
		closeDB(db, logger)
		return nil, err
	}
	registry := prometheus.NewRegistry()
	repo := flow.NewFlowRepo(db)
	flowLock, redisClient := config.NewFlowLock()
	opts := append(config.ServiceOptions(),
		flow.WithLogger(logger),
		flow.WithMetrics(flow.NewMetrics(registry)),
		flow.WithBindDataRegistry(bindData),
	)
	service := flow.NewFlowService(
		flow.NewCachedFlowWorkRepository(repo, config.WorkCacheTTL),
		repo, repo, repo, flowLock, opts...,
	)
	return &app{
		config:      config,
		logger:      logger,
		db:          db,
		repo:        repo,
		service:     service,
		registry:    registry,
		bindData:    bindData,
		redisClient: redisClient,
	}, nil
}

func (a *app) close() {
	if showMetrics {
		a.printMetrics()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("close redis client failed", "err", err)
		}
	}
	closeDB(a.db, a.logger)
}

func closeDB(db *gorm.DB, logger *slog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Warn("get sql db failed", "err", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("close database failed", "err", err)
	}
}

func (a *app) printMetrics() {
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Warn("gather metrics failed", "err", err)
		return
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := ""
			for _, label := range metric.GetLabel() {
				labels += fmt.Sprintf("%s=%s ", label.GetName(), label.GetValue())
			}
			fmt.Printf("%s %s%v\n", family.GetName(), labels, metric.GetCounter().GetValue())
		}
	}
}

// runWithApp 打开依赖, 执行命令, 最后关闭
func runWithApp(f func(ctx context.Context, a *app, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(configPath)
		if err != nil {
			return err
		}
		defer a.close()
		return f(cmd.Context(), a, args)
	}
}

func output(v any, text func()) {
	if jsonOutput {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal output failed: %v\n", err)
			return
		}
		fmt.Println(string(b))
		return
	}
	text()
}

var rootCmd = &cobra.Command{
	Use:           "flowctl",
	Short:         "flowctl - approval flow engine command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "engine config file (yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in json format")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "print engine counters after the command")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode 按错误分类返回退出码
func exitCode(err error) int {
	switch {
	case flow.IsValidationError(err):
		return 2
	case flow.IsNotFoundError(err):
		return 3
	case flow.IsStateConflictError(err):
		return 4
	case flow.IsPermissionError(err):
		return 5
	}
	return 1
}
