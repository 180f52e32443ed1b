package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/wfunc/pulse-server/internal/api"
	"github.com/wfunc/pulse-server/internal/config"
	"github.com/wfunc/pulse-server/internal/database"
	"github.com/wfunc/pulse-server/internal/errors"
	"github.com/wfunc/pulse-server/internal/instrument"
	"github.com/wfunc/pulse-server/internal/logger"
	"github.com/wfunc/pulse-server/internal/models"
	"github.com/wfunc/pulse-server/internal/repository"
	"github.com/wfunc/pulse-server/internal/visa"
	"github.com/wfunc/pulse-server/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 服务器实例
type Server struct {
	// 配置热更新时整体替换，读取方通过config()获取当前快照
	cfg    atomic.Pointer[config.Config]
	logger *zap.Logger

	// 服务组件
	controller instrument.PulseController
	reconnect  *instrument.ReconnectManager
	poller     *instrument.Poller
	hub        *websocket.Hub
	httpServer *http.Server

	// 日志入库
	commandLogs *repository.CommandLogRepository
	snapshots   *repository.SnapshotRepository
	recordCh    chan *instrument.CommandRecord

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		mockMode    = flag.Bool("mock", false, "使用模拟仪器（覆盖配置）")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()
	if *mockMode {
		cfg.Instrument.MockMode = true
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Printf("配置校验失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 设置系统参数
	setupSystem(&cfg.System)

	// 打印启动信息
	printStartInfo(cfg)

	// 创建服务器实例
	server := NewServer(cfg)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	// 等待退出信号
	server.WaitForShutdown()

	// 优雅关闭
	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		logger:     logger.GetLogger(),
		recordCh:   make(chan *instrument.CommandRecord, 256),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.cfg.Store(cfg)
	return s
}

// config 返回当前配置快照
func (s *Server) config() *config.Config {
	return s.cfg.Load()
}

// Start 启动服务器
func (s *Server) Start() error {
	cfg := s.config()
	s.logger.Info("正在启动脉冲发生器控制服务器...",
		zap.String("version", Version),
		zap.String("mode", cfg.Server.Mode),
		zap.Bool("mock", cfg.Instrument.MockMode),
	)

	// 初始化各个组件
	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	// 启动各个服务
	s.startServices()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.cfg.Store(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("resource", cfg.VISA.Resource),
	)

	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	if err := s.initDatabase(); err != nil {
		return err
	}

	s.commandLogs = repository.NewCommandLogRepository(database.GetDB())
	s.snapshots = repository.NewSnapshotRepository(database.GetDB())

	s.initInstrument()

	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	cfg := s.config()
	if err := database.Init(&cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// initInstrument 初始化仪器控制器与周边组件
func (s *Server) initInstrument() {
	cfg := s.config()
	if cfg.Instrument.MockMode {
		s.logger.Warn("使用模拟仪器控制器")
		s.controller = instrument.NewMockController()
	} else {
		opener := visa.NewOpener(&cfg.VISA)
		s.controller = instrument.NewHP8131A(opener)
	}

	s.hub = websocket.NewHub(logger.GetModuleLogger("websocket"))

	// 命令记录：入库并推送到监控流
	s.controller.SetCommandHook(func(rec *instrument.CommandRecord) {
		select {
		case s.recordCh <- rec:
		default:
			// 入库队列已满时丢弃，不阻塞仪器通信
		}
	})

	// 通信故障时触发自动重连
	s.reconnect = instrument.NewReconnectManager(s.controller, &cfg.VISA.Reconnect)
	s.reconnect.SetReconnectCallback(func() {
		s.recordConnectionEvent("reconnected", nil)
	})

	if hp, ok := s.controller.(*instrument.HP8131A); ok {
		hp.SetFaultCallback(func(err error) {
			s.recordConnectionEvent("fault", err)
			if s.config().VISA.Reconnect.Enabled {
				s.reconnect.TriggerReconnect()
			}
		})
	}

	// 周期轮询：快照入库并推送到监控流
	s.poller = instrument.NewPoller(s.controller, cfg.Instrument.PollInterval)
	s.poller.SetSnapshotCallback(func(snap *instrument.StatusSnapshot) {
		s.hub.BroadcastEvent(websocket.MessageTypeStatus, snap)

		if snap.Settings == nil {
			return
		}
		record := &models.SettingSnapshot{
			State:    string(snap.State),
			Identity: snap.Identity,
			Resource: snap.Address,
			Settings: models.JSONData(snap.Settings),
		}
		if err := s.snapshots.CreateSnapshot(record); err != nil {
			s.logger.Error("保存设置快照失败", zap.Error(err))
		}
	})

	// 监控客户端主动拉取状态
	s.hub.SetStatusProvider(func() interface{} {
		return s.poller.Poll()
	})
}

// startServices 启动服务
func (s *Server) startServices() {
	cfg := s.config()

	go s.hub.Run()

	s.wg.Add(1)
	go s.recordWorker()

	if cfg.VISA.Reconnect.Enabled {
		s.reconnect.Start(cfg.VISA.Resource)
	}

	if cfg.Instrument.PollEnabled {
		s.poller.Start()
	}

	// 启动时尝试连接配置中的仪器
	if cfg.VISA.Resource != "" {
		if err := s.controller.Connect(cfg.VISA.Resource); err != nil {
			s.logger.Warn("启动时连接仪器失败",
				zap.String("resource", cfg.VISA.Resource),
				zap.Error(err))
			s.recordConnectionEvent("connect_failed", err)
			if cfg.VISA.Reconnect.Enabled {
				s.reconnect.TriggerReconnect()
			}
		} else {
			s.recordConnectionEvent("connected", nil)
		}
	}

	// HTTP服务
	router := api.NewRouter(cfg, database.GetDB(), s.controller, s.hub, s.logger)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
		}
	}()
}

// recordWorker 消费命令记录，入库并推送
func (s *Server) recordWorker() {
	defer s.wg.Done()

	direction := func(rec *instrument.CommandRecord) models.CommandDirection {
		if rec.IsQuery {
			return models.CommandDirectionQuery
		}
		return models.CommandDirectionWrite
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case rec := <-s.recordCh:
			s.hub.BroadcastEvent(websocket.MessageTypeCommand, rec)

			entry := &models.CommandLog{
				Direction: direction(rec),
				Command:   rec.Command,
				Response:  rec.Response,
				Success:   rec.Success,
				ErrorMsg:  rec.Error,
				Resource:  s.controller.Address(),
				Duration:  rec.Elapsed.Milliseconds(),
				Timestamp: rec.Timestamp.UnixMilli(),
			}
			if err := s.commandLogs.Create(entry); err != nil {
				s.logger.Error("保存命令日志失败", zap.Error(err))
			}
		}
	}
}

// recordConnectionEvent 记录连接事件并推送到监控流
func (s *Server) recordConnectionEvent(event string, cause error) {
	record := &models.ConnectionEvent{
		Event:    event,
		Resource: s.config().VISA.Resource,
		Identity: s.controller.Identity(),
	}
	if cause != nil {
		record.ErrorMsg = cause.Error()
	}

	if err := s.snapshots.CreateEvent(record); err != nil {
		s.logger.Error("保存连接事件失败", zap.Error(err))
	}

	s.hub.BroadcastEvent(websocket.MessageTypeConnectionEvent, record)
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config().Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
		}
	}

	// 停止轮询与重连
	s.poller.Stop()
	s.reconnect.Stop()

	// 取消主上下文，触发所有goroutine退出
	s.cancel()

	// 等待所有服务关闭
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	// 关闭各个组件
	s.closeComponents()

	// 同步日志
	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// closeComponents 关闭组件
func (s *Server) closeComponents() {
	if s.controller != nil && s.controller.IsConnected() {
		if err := s.controller.Disconnect(); err != nil {
			s.logger.Error("断开仪器失败", zap.Error(err))
		}
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	s.logger.Info("所有组件已关闭")
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	// 设置时区
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}

	// 设置最大处理器数
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}

	// 设置文件描述符限制（Unix系统）
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err == nil {
		rLimit.Cur = rLimit.Max
		syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("脉冲发生器控制服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("脉冲发生器控制服务器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  pulse-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  PULSE_SERVER_VISA_RESOURCE   仪器VISA资源地址")
	fmt.Println("  PULSE_SERVER_SERVER_PORT     HTTP监听端口")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  pulse-server -config=/path/to/config.yaml")
	fmt.Println("  pulse-server -mock")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("  Pulse Server - HP 8131A 脉冲发生器控制服务")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Printf("仪器资源: %s\n", cfg.VISA.Resource)
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
