package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/MrCodeEU/faceverify/pkg/config"
	"github.com/MrCodeEU/faceverify/pkg/logging"
)

const version = "0.2.0"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(args []string) error
}

var (
	cfg      *config.Config
	commands map[string]*Command
)

// commandOrder is the order commands appear in usage output.
var commandOrder = []string{"verify", "cameras", "gallery", "seal", "download-models", "config", "version", "help"}

func init() {
	commands = map[string]*Command{
		"verify": {
			Name:        "verify",
			Description: "Live face verification against the reference gallery",
			Usage:       "faceverify verify",
			Run:         cmdVerify,
		},
		"cameras": {
			Name:        "cameras",
			Description: "List usable cameras",
			Usage:       "faceverify cameras",
			Run:         cmdCameras,
		},
		"gallery": {
			Name:        "gallery",
			Description: "Load the encodings file and report identities and rejected rows",
			Usage:       "faceverify gallery",
			Run:         cmdGallery,
		},
		"seal": {
			Name:        "seal",
			Description: "Store the gallery in the encrypted data directory",
			Usage:       "faceverify seal [remove]",
			Run:         cmdSeal,
		},
		"download-models": {
			Name:        "download-models",
			Description: "Download the dlib recognition models",
			Usage:       "faceverify download-models [dir]",
			Run:         cmdDownloadModels,
		},
		"config": {
			Name:        "config",
			Description: "Show current configuration",
			Usage:       "faceverify config",
			Run:         cmdConfig,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Usage:       "faceverify version",
			Run:         cmdVersion,
		},
		"help": {
			Name:        "help",
			Description: "Show help information",
			Usage:       "faceverify help [command]",
			Run:         cmdHelp,
		},
	}
}

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	args := flag.Args()

	var err error
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		if err == nil {
			err = cfg.ApplyEnv()
		}
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	cfg.ExpandPaths()

	logLevel := cfg.Logging.Level
	if *debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	defer logging.Close()

	logging.Debugf("FaceVerify v%s starting", version)

	if len(args) < 1 {
		printUsage()
		return
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage()
		logging.Close()
		os.Exit(1)
	}

	if cmdName != "help" && cmdName != "version" {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
			logging.Close()
			os.Exit(1)
		}
	}

	if err := cmd.Run(args[1:]); err != nil {
		logging.WithError(err).Errorf("Command '%s' failed", cmdName)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logging.Close()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("FaceVerify - Live face verification for Linux cameras")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Usage: faceverify [options] <command> [arguments]")
	fmt.Println("\nOptions:")
	fmt.Println("  -config <file>   Path to configuration file")
	fmt.Println("  -debug           Enable debug logging")
	fmt.Println("\nCommands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		fmt.Printf("  %-16s %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\nExamples:")
	fmt.Println("  faceverify cameras          # Find usable cameras")
	fmt.Println("  faceverify verify           # Start live verification")
	fmt.Println("  faceverify -debug verify    # Verify with debug output")
	fmt.Println("\nRun 'faceverify help <command>' for more information on a command.")
}

func cmdConfig(args []string) error {
	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("[Camera]")
	fmt.Printf("  Device:          %s\n", orDefault(cfg.Camera.Device, "first usable"))
	fmt.Printf("  Candidates:      %s\n", orDefault(fmt.Sprint(cfg.Camera.Devices), "enumerate"))
	fmt.Printf("  Max Probe:       %d\n", cfg.Camera.MaxProbe)
	fmt.Printf("  Resolution:      %dx%d @ %d FPS (%s)\n", cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS, cfg.Camera.InputFormat)
	fmt.Printf("  Backoff:         %v - %v\n", cfg.Camera.MinBackoff(), cfg.Camera.MaxBackoff())
	fmt.Println()
	fmt.Println("[Recognition]")
	fmt.Printf("  Threshold:       %.2f\n", cfg.Recognition.Threshold)
	fmt.Printf("  Dimensions:      %d\n", cfg.Recognition.Dimensions)
	fmt.Printf("  Model Path:      %s\n", cfg.Recognition.ModelPath)
	fmt.Println()
	fmt.Println("[Gallery]")
	fmt.Printf("  Encodings:       %s\n", cfg.Gallery.EncodingsFile)
	fmt.Printf("  Image Dir:       %s\n", cfg.Gallery.ImageDir)
	fmt.Printf("  Sealed:          %t\n", cfg.Gallery.Sealed)
	fmt.Println()
	fmt.Println("[Display]")
	fmt.Printf("  Refresh:         %v\n", cfg.Display.RefreshInterval())
	fmt.Printf("  Preview:         %s\n", orDefault(cfg.Display.PreviewPath, "disabled"))
	fmt.Println()
	fmt.Println("[Storage]")
	fmt.Printf("  Data Dir:        %s\n", cfg.Storage.DataDir)
	fmt.Printf("  Encryption:      %t\n", cfg.Storage.EncryptionEnabled)
	fmt.Println()
	fmt.Println("[Logging]")
	fmt.Printf("  Level:           %s\n", cfg.Logging.Level)
	fmt.Printf("  File:            %s\n", orDefault(cfg.Logging.File, "stderr only"))

	return nil
}

func orDefault(v, def string) string {
	if v == "" || v == "[]" {
		return def
	}
	return v
}

func cmdVersion(args []string) error {
	fmt.Printf("FaceVerify v%s\n", version)
	fmt.Println("Live face verification for Linux cameras")
	fmt.Println()
	fmt.Println("Build Information:")
	fmt.Printf("  Go version: %s\n", runtime.Version())
	fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	fmt.Printf("Command: %s\n", cmd.Name)
	fmt.Printf("Description: %s\n", cmd.Description)
	fmt.Printf("Usage: %s\n", cmd.Usage)

	switch cmdName {
	case "verify":
		fmt.Println("\nConsole Commands:")
		printConsoleHelp(os.Stdout)
	case "gallery", "seal":
		fmt.Println("\nEncodings File:")
		fmt.Println("  CSV with the columns name, image_name and encoding.")
		fmt.Println("  encoding is a comma separated list of floats.")
		fmt.Println("  Malformed rows are reported and skipped.")
	case "config":
		fmt.Println("\nConfiguration Locations:")
		fmt.Println("  System: /etc/faceverify/faceverify.yaml")
		fmt.Println("  User:   ~/.config/faceverify/faceverify.yaml")
		fmt.Println("\nUse -config flag to specify a custom config file.")
		fmt.Println("FACEVERIFY_* variables (or a .env file) override file settings.")
	}

	return nil
}
