package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/joho/godotenv"

	"mramip/internal/models"
	"mramip/pkg/config"
	"mramip/pkg/logging"
	"mramip/pkg/pipeline"
)

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	defaultConfig := os.Getenv("MRAMIP_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}

	// Parse command line arguments
	configPath := flag.String("config", defaultConfig, "YAML configuration file (env MRAMIP_CONFIG)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	inputFile := flag.String("input", "", "DICOM or NIfTI input file")
	inputDir := flag.String("dir", "", "Directory searched for .dcm files")
	series := flag.Bool("series", false, "Read every .dcm file of -dir as one series")
	fetchURL := flag.String("fetch", "", "Page to download .dcm files from when -dir has none (default: from config, PhysioNet)")
	outputDir := flag.String("output", "", "Output directory")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config, all available)")
	angles := flag.Int("angles", 0, "Number of projections (default: from config)")
	axis := flag.String("axis", "", "Rotation axis x, y or z (default: from config)")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save input and masked slices as PNG")
	noProgress := flag.Bool("no-progress", false, "Disable the progress bar")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command line flags override the config file
	if *inputFile != "" {
		cfg.Input.File = *inputFile
	}
	if *inputDir != "" {
		cfg.Input.Dir = *inputDir
	}
	if *series {
		cfg.Input.Series = true
	}
	if *fetchURL != "" {
		cfg.Input.FetchURL = *fetchURL
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *angles > 0 {
		cfg.Sweep.Angles = *angles
	}
	if *axis != "" {
		cfg.Sweep.Axis = *axis
	}
	if *saveIntermediary {
		cfg.Output.SaveIntermediaryResults = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closer.Close()

	params, err := pipeline.ParamsFromConfig(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("ROTATING MAXIMUM INTENSITY PROJECTION OF MRA VOLUMES")
	fmt.Println("================================")

	processor := pipeline.NewProcessor(params, logger)

	var bar *pb.ProgressBar
	if !*noProgress {
		processor.SetObserver(func(done, total int, _ *models.Frame) {
			if bar == nil {
				bar = pb.StartNew(total)
			}
			bar.Increment()
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Starting pipeline with %d cores...\n", cfg.Processing.NumCores)
	startTime := time.Now()
	result, err := processor.Process(ctx)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nPipeline completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Run id: %s\n", result.RunID)
	fmt.Printf("Input: %s\n\n", result.Input)
	fmt.Println("Outputs:")
	fmt.Printf("- Input volume: %s\n", result.Outputs.Example)
	fmt.Printf("- Masked volume: %s\n", result.Outputs.Masked)
	fmt.Printf("- Rotational MIP (%d frames): %s\n", result.Frames, result.Outputs.RotationalMIP)
	fmt.Printf("- Animation: %s\n", result.Outputs.Animation)
	if result.Outputs.FramesDir != "" {
		fmt.Printf("- PNG frames: %s\n", result.Outputs.FramesDir)
	}
	fmt.Printf("- Manifest: %s\n", result.Outputs.Manifest)

	if cfg.Output.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", params.IntermediaryDir)
		fmt.Println("The following stages were saved:")
		fmt.Println("- 01_input_slices: Axial slices of the input volume")
		fmt.Println("- 02_masked_slices: Axial slices after background removal")
	}
}
