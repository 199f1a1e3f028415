package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/CZERTAINLY/Atelier/internal/log"
	"github.com/CZERTAINLY/Atelier/internal/model"
)

var (
	userConfigPath string // /default/config/path/atelier on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "atelier")
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is atelier.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initAtelier

	runCmd.Flags().StringVar(&flagStyle, "style", string(model.DefaultStyle), "art style: anime, cartoon, ghibli or comic")
	runCmd.Flags().StringVar(&flagStrength, "strength", "", "transformation strength between 0 and 1")
	runCmd.Flags().StringVar(&flagPrompt, "prompt", "", "additional prompt appended to the style phrase")
	galleryCmd.Flags().IntVar(&flagLimit, "limit", 0, "maximum number of images to list")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(galleryCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("atelier failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "atelier",
	Short:        "Turns photos into styled artwork using an external generator",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of an atelier",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("atelier: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:  %s\n", configPath)
		}
		fmt.Printf("atelier: %s\n", info.Main.Version)
		fmt.Printf("go:      %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:  %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:    %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:   %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initAtelier(cmd *cobra.Command, _ []string) error {
	// .env may provide ATELIERCONFIG and values for worker.env
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env: %w", err)
	}

	env, _ := os.LookupEnv("ATELIERCONFIG")
	configPath = findConfig(env, flagConfigFilePath, ".", userConfigPath)

	if configPath == "" {
		var err error
		config = model.DefaultConfig()
		configPath, err = storeDefaultConfig(config, filepath.Join(userConfigPath, "atelier.yaml"))
		if err != nil {
			return err
		}
	} else {
		var err error
		config, err = loadConfig(configPath)
		if err != nil {
			return err
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Log.Verbose = true
	}
	slog.SetDefault(log.New(config.Log.Verbose))

	slog.Debug("atelier run", "configPath", configPath)
	slog.Debug("atelier run", "config", config)
	return nil
}
