package main

import (
	"github.com/alecthomas/kong"
	"github.com/mgmeyers/unipdf/v3/common"
	"github.com/sirupsen/logrus"
)

type Globals struct {
	LogLevel string `enum:"debug,info,warn,error" default:"warn" help:"Log level"`
	LogJSON  bool   `name:"log-json" help:"Log as JSON"`
}

var cli struct {
	Globals

	List   ListCmd   `cmd:"" help:"Print page count and page geometry"`
	Text   TextCmd   `cmd:"" help:"Print the text layer of one or all pages"`
	Render RenderCmd `cmd:"" help:"Render pages to images"`
	Export ExportCmd `cmd:"" help:"Bake annotations into a copy of the PDF"`
	OCR    OCRCmd    `cmd:"" name:"ocr" help:"Recognize the text under annotations"`
	Prompt PromptCmd `cmd:"" help:"Print the insight prompt for a set of annotations"`
}

func setupLogging(g *Globals) *logrus.Logger {
	log := logrus.New()
	if g.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(g.LogLevel)
	if err != nil {
		lvl = logrus.WarnLevel
	}
	log.SetLevel(lvl)

	// unipdf is chatty about recoverable syntax problems
	unipdfLevel := common.LogLevelError
	if lvl >= logrus.DebugLevel {
		unipdfLevel = common.LogLevelDebug
	}
	common.SetLogger(common.NewConsoleLogger(unipdfLevel))

	return log
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("pdfmarks"),
		kong.Description("Render, annotate and export PDF documents."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, "~/.pdfmarks.json", "./.pdfmarks.json"),
	)

	log := setupLogging(&cli.Globals)
	err := ctx.Run(&cli.Globals, log)
	endIfErr(log, err)
}
