package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/config"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/server"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

const (
	flagConfig = "config"
	flagLogDir = "log-dir"
	flagDebug  = "debug"
)

func main() {
	app := &cli.App{
		Name:    "goaltracker",
		Usage:   "distância e direção do alvo até o goal a partir de várias câmeras",
		Version: server.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "arquivo de configuração JSON",
				Value:   config.DefaultPath,
				EnvVars: []string{"GOALTRACKER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  flagLogDir,
				Usage: "diretório dos arquivos de log (sobrescreve log.dir)",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "força o nível DEBUG",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "erro: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger.Init()
	defer logger.Sync()

	// Carregar configurações
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return errors.Wrap(err, "erro ao carregar configurações")
	}

	if err := setupLogging(c, cfg); err != nil {
		return err
	}

	displayBanner()
	logger.Info("Iniciando Goal Tracker")
	logger.Infof("Configuração carregada: câmeras %v, Redis em %s:%d (habilitado: %v), goal %s",
		cfg.Cameras.IDs, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Enabled, cfg.Goal.Mode)
	logger.Infof("Tick %v, timeout por câmera %v", cfg.Tracker.TickInterval.D(), cfg.Tracker.PollTimeout.D())

	// Criar o servidor
	srv, err := server.NewServer(cfg)
	if err != nil {
		return errors.Wrap(err, "erro ao criar servidor")
	}

	// Iniciar o servidor em uma goroutine separada
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Configurar captura de sinais para shutdown gracioso
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		logger.Infof("Sinal %v recebido, desligando servidor...", sig)
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("Servidor encerrado com erro", runErr)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.D())
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Erro durante o shutdown do servidor", err)
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("Servidor encerrado com sucesso")
	return nil
}

// setupLogging aplica nível e arquivos de log
func setupLogging(c *cli.Context, cfg *config.Config) error {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if c.Bool(flagDebug) {
		level = logger.DEBUG
	}
	logger.SetLevel(level)

	logDir := cfg.Log.Dir
	if c.IsSet(flagLogDir) {
		logDir = c.String(flagLogDir)
	}
	if logDir == "" {
		return nil
	}
	return errors.Wrapf(logger.EnableFileLogging(logDir, cfg.Log.Prefix), "log em %s", logDir)
}

// displayBanner exibe um banner de inicialização
func displayBanner() {
	banner := `
   ____             _   _____               _
  / ___| ___   __ _| | |_   _| __ __ _  ___| | _____ _ __
 | |  _ / _ \ / _' | |   | || '__/ _' |/ __| |/ / _ \ '__|
 | |_| | (_) | (_| | |   | || | | (_| | (__|   <  __/ |
  \____|\___/ \__,_|_|   |_||_|  \__,_|\___|_|\_\___|_|   v` + server.Version + `
 `
	fmt.Println(banner)
	fmt.Printf("Iniciando em %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
}
