package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/pkg/config"
	"github.com/PhanTTKhai/ADO-translate/pkg/preprocess"
)

var args struct {
	Image       string `arg:"positional,required"`
	Out         string `arg:"-o,--out" default:"debug" help:"directory for the stage images"`
	Profile     string `arg:"--profile"`
	ProfileFile string `arg:"--profile-file,env:PROFILE_PATH"`
}

func main() {
	arg.MustParse(&args)
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	profiles := config.DefaultProfiles()
	if args.ProfileFile != "" {
		p, err := config.LoadProfile(args.ProfileFile)
		if err != nil {
			log.Fatal(err)
		}
		profiles = p
	}
	cfg, err := profiles.Pipeline(args.Profile)
	if err != nil {
		log.Fatal(err)
	}
	p, err := preprocess.New(cfg, preprocess.WithLogger(log))
	if err != nil {
		log.Fatal(err)
	}
	res, err := p.RunFile(args.Image)
	if err != nil {
		log.Fatal(err)
	}
	if err := os.MkdirAll(args.Out, 0o755); err != nil {
		log.Fatal(err)
	}

	base := strings.TrimSuffix(filepath.Base(args.Image), filepath.Ext(args.Image))
	stages := []struct {
		name string
		img  image.Image
	}{
		{preprocess.StageResize, res.Resized},
		{preprocess.StageGray, res.Gray},
		{preprocess.StageContrast, res.Enhanced},
		{preprocess.StageDeskew, res.Deskewed},
		{preprocess.StageBinarize, res.Binary},
		{preprocess.StageClose, res.Cleaned},
	}
	for i, st := range stages {
		path := filepath.Join(args.Out, fmt.Sprintf("%s.ocr.%d-%s.png", base, i+1, st.name))
		if err := preprocess.SaveImage(path, st.img); err != nil {
			log.Fatalf("save %s: %v", path, err)
		}
		fmt.Println(path)
	}
	fmt.Printf("deskew angle=%.2f measured=%.2f capped=%t foreground=%d\n",
		res.Deskew.Angle, res.Deskew.Measured, res.Deskew.Capped, res.Deskew.Foreground)
	for _, d := range res.Diagnostics {
		fmt.Printf("diagnostic %s at %s: %s\n", d.Kind, d.Stage, d.Message)
	}
}
