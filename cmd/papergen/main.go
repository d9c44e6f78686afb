package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"papergen/internal/config"
	"papergen/internal/diagram"
	"papergen/internal/pipeline"
	"papergen/internal/services"
	"papergen/internal/writer"
)

func main() {
	var (
		count    = flag.Int("count", 0, "target number of questions (default from PAPERGEN_TARGET_COUNT, 25)")
		output   = flag.String("output", "", "output directory (default from PAPERGEN_OUTPUT_DIR)")
		fromJSON = flag.String("from-json", "", "path to existing metadata JSON; skips generation and re-renders the document")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: papergen [flags] <topic> <class-level>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Load()
	if *count <= 0 {
		*count = cfg.TargetCount
	}
	if *output == "" {
		*output = cfg.OutputDir
	}

	if *fromJSON != "" {
		if err := renderFromJSON(*fromJSON, *output); err != nil {
			log.Fatalf("✗ Document render failed: %v", err)
		}
		return
	}

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(2)
	}
	topic := flag.Arg(0)
	classLevel := flag.Arg(1)

	if cfg.GeminiAPIKey == "" {
		log.Fatal("✗ GEMINI_API_KEY is not set")
	}

	log.Printf("🚀 Starting question paper generation for: %s - %s (target %d)", topic, classLevel, *count)

	ctx := context.Background()
	gemini, err := services.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer gemini.Close()
	log.Println("✓ Gemini client initialized")

	imagesDir := filepath.Join(*output, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		log.Fatalf("✗ Failed to create output directory: %v", err)
	}

	base := writer.BaseFilename(topic, classLevel)
	texPath := filepath.Join(*output, base+".tex")
	texFile, err := os.Create(texPath)
	if err != nil {
		log.Fatalf("✗ Failed to create document file: %v", err)
	}
	defer texFile.Close()

	lw := writer.NewLaTeXWriter(texFile, topic, classLevel)
	if err := lw.Initialize(); err != nil {
		log.Fatalf("✗ Failed to initialize document: %v", err)
	}
	log.Printf("✓ Initialized LaTeX file: %s", texPath)

	diagrams := services.NewDiagramService(gemini, diagram.NewRenderer(), imagesDir)
	orch := pipeline.New(gemini, gemini, gemini, diagrams, lw, pipeline.Options{
		TargetCount:         *count,
		BasicPercent:        cfg.BasicPercent,
		IntermediatePercent: cfg.IntermediatePercent,
	})

	res, runErr := orch.Run(ctx, topic, classLevel)

	// Close the document even when the run aborted: partial output stays
	// compilable.
	if err := lw.Finalize(); err != nil {
		log.Printf("✗ Failed to finalize document: %v", err)
	}
	if runErr != nil {
		log.Fatalf("✗ Generation failed: %v", runErr)
	}

	paper := res.Paper(topic, classLevel)
	jsonPath := filepath.Join(*output, base+".json")
	if err := writer.SaveMetadata(jsonPath, paper); err != nil {
		log.Fatalf("✗ Failed to save metadata: %v", err)
	}

	log.Println("✅ Question paper generation complete!")
	log.Printf("   📄 LaTeX file:    %s", texPath)
	log.Printf("   📊 Question data: %s", jsonPath)
	log.Printf("   🖼️  Images:        %s", imagesDir)
	if res.Shortfall > 0 {
		log.Printf("⚠️  Shortfall: produced %d of %d requested questions", len(res.Questions), res.Target)
	}
	log.Printf("💡 To compile: pdflatex %s", texPath)
}

// renderFromJSON is the document-only mode: re-render the LaTeX file from a
// previously saved metadata file. No model calls are made.
func renderFromJSON(jsonPath, output string) error {
	paper, err := writer.LoadMetadata(jsonPath)
	if err != nil {
		return err
	}
	log.Printf("📂 Loaded %d questions from %s", len(paper.Questions), jsonPath)

	if err := os.MkdirAll(output, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	texPath := filepath.Join(output, writer.BaseFilename(paper.Topic, paper.ClassLevel)+".tex")
	texFile, err := os.Create(texPath)
	if err != nil {
		return fmt.Errorf("creating document file: %w", err)
	}
	defer texFile.Close()

	if err := writer.RenderPaper(texFile, paper); err != nil {
		return err
	}

	log.Printf("✅ Document rendered: %s", texPath)
	log.Printf("💡 To compile: pdflatex %s", texPath)
	return nil
}
