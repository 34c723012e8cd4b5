// Package app はアプリケーションの起動とワイヤリングを担当する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/gatekeeper/internal/bot"
	"github.com/hitoshi/gatekeeper/internal/config"
	"github.com/hitoshi/gatekeeper/internal/database"
	"github.com/hitoshi/gatekeeper/internal/handler"
	"github.com/hitoshi/gatekeeper/internal/logger"
	"github.com/hitoshi/gatekeeper/internal/membership"
	"github.com/hitoshi/gatekeeper/internal/metrics"
	"github.com/hitoshi/gatekeeper/internal/relay"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/security"
	"github.com/hitoshi/gatekeeper/internal/telegram"
	"github.com/hitoshi/gatekeeper/internal/worker/cleanup"
	"github.com/hitoshi/gatekeeper/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Int64("admin_id", cfg.AdminID),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はボット本体モードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、ロングポーリングループと
// スイープワーカー、運用系HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	memberRepo := repository.NewPostgresMemberRepo(db)
	channelRepo := repository.NewPostgresChannelRepo(db)
	inviteRepo := repository.NewPostgresInviteRepo(db)
	relayRepo := repository.NewPostgresRelayRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. プラットフォームクライアントの初期化
	client := telegram.NewClient(
		&http.Client{Timeout: cfg.PollTimeout + 10*time.Second},
		slog.Default(), cfg.APIBaseURL, cfg.BotToken,
	)
	limiter := rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst)
	sender := telegram.NewSender(client, limiter, slog.Default(), collector, cfg.RetryMaxAttempts)

	// 5. ドメインサービスの初期化
	sanitizer := security.NewNameSanitizer()
	membershipService := membership.NewService(
		memberRepo, channelRepo, inviteRepo, sender, sanitizer,
		collector, slog.Default(), cfg.AdminID, cfg.WarnLead,
	)
	relayService := relay.NewService(
		memberRepo, relayRepo, sender, collector, slog.Default(), cfg.AdminID,
	)

	// 6. スイープワーカーの初期化
	membershipSweep := sweep.NewMembershipSweep(
		memberRepo, channelRepo, inviteRepo, sender,
		collector, slog.Default(), cfg.AdminID,
	)
	inviteSweep := sweep.NewInviteSweep(
		inviteRepo, sender, collector, slog.Default(), cfg.InviteTTL,
	)

	// 7. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(relayRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.ProcessedRetentionDays

	// 8. ディスパッチャの初期化
	dispatcher := bot.NewDispatcher(
		client, sender, membershipService, relayService, channelRepo,
		slog.Default(), cfg.AdminID, cfg.PollTimeout,
	)

	// 9. 運用系HTTPサーバーの構築
	router := handler.NewRouter(&handler.RouterDeps{Registry: registry})
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down...")
		cancel()
	}()

	go func() {
		slog.Info("ops server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// スイープワーカーをバックグラウンドで起動
	go membershipSweep.Start(ctx, cfg.SweepInterval)
	go inviteSweep.Start(ctx, cfg.InviteSweepInterval)

	// クリーンアップジョブを毎時バックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// ロングポーリングループをメインgoroutineで実行（ブロッキング）
	dispatcher.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
