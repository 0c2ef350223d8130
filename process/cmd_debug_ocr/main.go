package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/pkg/config"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
	"github.com/PhanTTKhai/ADO-translate/pkg/preprocess"
)

// Runs one backend on an already processed image and prints the raw output
// next to what the adapter made of it.
var args struct {
	Image   string `arg:"positional,required"`
	Backend string `arg:"-b,--backend" help:"backend name; default the first configured"`
}

func main() {
	arg.MustParse(&args)
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	specs := cfg.EnvBackends()
	if cfg.ProfilePath != "" {
		p, err := config.LoadProfile(cfg.ProfilePath)
		if err != nil {
			log.Fatal(err)
		}
		if len(p.Backends) > 0 {
			specs = p.Backends
		}
	}
	specs, err = config.SelectBackends(specs, args.Backend)
	if err != nil {
		log.Fatal(err)
	}
	if len(specs) == 0 {
		log.Fatal("no backend configured")
	}
	backends, err := config.BuildBackends(specs[:1])
	if err != nil {
		log.Fatal(err)
	}
	b := backends[0]

	img, err := preprocess.Load(args.Image)
	if err != nil {
		log.Fatal(err)
	}
	raw, err := b.Recognize(context.Background(), img)
	if err != nil {
		log.Fatalf("%s: %v", b.Name(), err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	fmt.Println("--- raw ---")
	if data, ok := raw.(json.RawMessage); ok {
		fmt.Println(string(data))
	} else {
		_ = enc.Encode(raw)
	}
	res := ocr.NewAdapter(log).Adapt(raw, b.Name())
	fmt.Printf("--- adapted: %d lines, %d skipped ---\n", len(res.Lines), res.Skipped)
	_ = enc.Encode(res.Lines)
	fmt.Println("--- text ---")
	fmt.Println(ocr.Aggregate(res).Text)
}
