package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/config"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
	"github.com/PhanTTKhai/ADO-translate/pkg/preprocess"
	"github.com/PhanTTKhai/ADO-translate/pkg/translate"
)

var args struct {
	Image          string   `arg:"positional" default:"screenshot.png" help:"image to read"`
	Output         string   `arg:"-o,--output" help:"save the extracted text here instead of printing it"`
	Visualize      bool     `arg:"-v,--visualize" help:"draw boxes and text over the deskewed image"`
	OutputImage    string   `arg:"--output-image" help:"where to save the visualization; required with --visualize"`
	FontPath       string   `arg:"--font-path,env:FONT_PATH" help:"TTF/OTF/TTC font covering the recognized script"`
	ProcessedImage string   `arg:"--processed-image" help:"save the cleaned bitmap fed to the backends"`
	Remote         string   `arg:"--remote,env:OCR_REMOTE_URL" help:"URL of a remote OCR service"`
	RemoteToken    string   `arg:"--remote-token,env:OCR_REMOTE_TOKEN"`
	Tesseract      bool     `arg:"--tesseract" help:"also run Tesseract"`
	Langs          []string `arg:"--lang,separate" help:"Tesseract languages (default jpn)"`
	Profile        string   `arg:"--profile" help:"preprocessing profile"`
	ProfileFile    string   `arg:"--profile-file,env:PROFILE_PATH" help:"YAML file with profiles"`
	MinConfidence  float64  `arg:"--min-conf" help:"drop lines below this confidence"`
	Translate      bool     `arg:"--translate" help:"translate the text with DeepL"`
	Target         string   `arg:"--target" default:"en"`
	DeepLURL       string   `arg:"--deepl-url,env:DEEPL_URL"`
	DeepLToken     string   `arg:"--deepl-token,env:DEEPL_TOKEN"`
	Debug          bool     `arg:"--debug"`
}

var log = logrus.New()

func main() {
	p := arg.MustParse(&args)
	if args.Visualize && args.OutputImage == "" {
		p.Fail("--output-image must be specified when using --visualize")
	}
	if args.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	profiles := config.DefaultProfiles()
	if args.ProfileFile != "" {
		var err error
		if profiles, err = config.LoadProfile(args.ProfileFile); err != nil {
			log.Fatalf("profile: %v", err)
		}
	}

	var specs []config.BackendSpec
	if args.Remote != "" {
		specs = append(specs, config.BackendSpec{Name: "remote", Type: "remote", URL: args.Remote, Token: args.RemoteToken})
	}
	if args.Tesseract {
		specs = append(specs, config.BackendSpec{Name: "tesseract", Type: "tesseract", Languages: args.Langs})
	}
	if len(specs) == 0 {
		specs = profiles.Backends
	}
	if len(specs) == 0 {
		p.Fail("no recognition backend: pass --remote and/or --tesseract")
	}
	backends, err := config.BuildBackends(specs)
	if err != nil {
		log.Fatal(err)
	}

	opts := []capture.Option{capture.WithLogger(log)}
	if args.Translate {
		if args.DeepLToken == "" {
			p.Fail("--translate needs --deepl-token or DEEPL_TOKEN")
		}
		d, err := translate.NewDeepL(args.DeepLURL, translate.WithToken(args.DeepLToken))
		if err != nil {
			log.Fatal(err)
		}
		opts = append(opts, capture.WithTranslator(d, args.Target))
	}
	svc, err := capture.NewService(profiles, backends, opts...)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, err := svc.ProcessFile(ctx, args.Image, capture.Request{
		Profile:       args.Profile,
		MinConfidence: args.MinConfidence,
		Translate:     args.Translate,
		Target:        args.Target,
	})
	if out != nil && out.Preprocess != nil && args.ProcessedImage != "" {
		if serr := preprocess.SaveImage(args.ProcessedImage, out.Preprocess.Cleaned); serr != nil {
			log.WithError(serr).Error("save processed image")
		}
	}
	if err != nil {
		log.Fatal(err)
	}
	for _, f := range out.Transcript.Failures {
		log.WithError(f.Err).WithField("backend", f.Backend).Warn("backend failed")
	}

	if args.Output != "" {
		if err := ocr.WriteTranscript(args.Output, out.Transcript); err != nil {
			log.Fatalf("write %s: %v", args.Output, err)
		}
		log.Infof("extracted text saved to %s", args.Output)
	} else {
		fmt.Println("--- Extracted Text ---")
		fmt.Println(out.Transcript.Text)
		fmt.Println("----------------------")
	}
	if out.Translation != "" {
		fmt.Println(out.Translation)
	} else if out.TranslationErr != nil {
		log.WithError(out.TranslationErr).Warn("translation failed")
	}

	if args.Visualize {
		var lines []ocr.RecognizedLine
		for _, r := range out.Transcript.Results {
			lines = append(lines, r.Lines...)
		}
		img, err := ocr.Render(out.Preprocess.Deskewed, lines, args.FontPath)
		if err != nil {
			log.Fatalf("visualize: %v", err)
		}
		if err := preprocess.SaveImage(args.OutputImage, img); err != nil {
			log.Fatalf("save %s: %v", args.OutputImage, err)
		}
		log.Infof("OCR results visualized and saved to %s", args.OutputImage)
	}
}
