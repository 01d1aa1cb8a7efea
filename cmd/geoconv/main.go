package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/tingold/orb-geoconv/internal/logger"
)

// GlobalOptions are shared by every command.
type GlobalOptions struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"GEOCONV_CONFIG" description:"Path to YAML configuration file"`
}

var global GlobalOptions

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	parser := flags.NewParser(&global, flags.Default)
	parser.ShortDescription = "Convert and merge vector geodata"

	mustAddCommand(parser, "convert", "Convert one file",
		"Reads one input file and writes it in another format.", &convertCommand{ctx: ctx})
	mustAddCommand(parser, "merge", "Merge files into one",
		"Reads every input, reconciles CRS and attribute schemas and writes one merged file.", &mergeCommand{ctx: ctx})
	mustAddCommand(parser, "formats", "List supported formats",
		"Prints every supported format with its file extension.", &formatsCommand{})

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		global.Logger.Setup()
		return cmd.Execute(args)
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func mustAddCommand(p *flags.Parser, name, short, long string, data any) {
	if _, err := p.AddCommand(name, short, long, data); err != nil {
		log.Fatal().Err(err).Str("command", name).Msg("Failed to register command")
	}
}
