package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/m3u-proxy/internal/database"
	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
	"github.com/jmylchreest/m3u-proxy/internal/storage"
)

var (
	outputDir string
)

// generateCmd runs a proxy generation and writes the outputs to disk.
var generateCmd = &cobra.Command{
	Use:   "generate <proxy-id>",
	Short: "Generate the M3U playlist and XMLTV EPG for a proxy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		proxyID, err := models.ParseULID(args[0])
		if err != nil {
			return fmt.Errorf("invalid proxy id %q: %w", args[0], err)
		}

		db, err := database.New(cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		sandbox, err := storage.NewSandbox(cfg.Storage.BaseDir)
		if err != nil {
			return err
		}
		logoCache, err := storage.NewLogoCache(filepath.Join(cfg.Storage.BaseDir, cfg.Storage.LogoDir))
		if err != nil {
			return err
		}

		governor := memory.NewGovernor(cfg.Memory.Limit.Bytes(),
			memory.WithLogger(logger),
			memory.WithSampleInterval(cfg.Memory.SampleInterval.Duration()),
		)

		engine := pipeline.NewEngine(&core.Dependencies{
			ChannelRepo:    repository.NewChannelRepository(db.DB),
			EpgChannelRepo: repository.NewEpgChannelRepository(db.DB),
			EpgProgramRepo: repository.NewEpgProgramRepository(db.DB),
			ProxyRepo:      repository.NewStreamProxyRepository(db.DB),
			Sandbox:        sandbox,
			LogoCache:      logoCache,
			LogoRewriter:   storage.NewLogoRewriter(cfg.Server.BaseURL),
			Governor:       governor,
			Config:         cfg.Pipeline,
			BaseURL:        cfg.Server.BaseURL,
			Logger:         logger,
		})

		result, err := engine.Generate(cmd.Context(), proxyID)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(outputDir, 0o750); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		m3uPath := filepath.Join(outputDir, fmt.Sprintf("%s.m3u", proxyID))
		if err := os.WriteFile(m3uPath, []byte(result.M3U), 0o640); err != nil {
			return fmt.Errorf("writing M3U: %w", err)
		}
		xmltvPath := filepath.Join(outputDir, fmt.Sprintf("%s.xml", proxyID))
		if err := os.WriteFile(xmltvPath, []byte(result.XMLTV), 0o640); err != nil {
			return fmt.Errorf("writing XMLTV: %w", err)
		}

		logger.Info("generation complete",
			slog.String("m3u_path", m3uPath),
			slog.String("xmltv_path", xmltvPath),
			slog.Int("channel_count", result.ChannelCount),
			slog.Int("program_count", result.ProgramCount),
			slog.Duration("duration", result.Duration),
		)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "directory for generated files")
	rootCmd.AddCommand(generateCmd)
}
