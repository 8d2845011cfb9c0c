package main

import (
	flag "github.com/spf13/pflag"
)

// cliFlags holds command line overrides.
type cliFlags struct {
	config   string
	port     string
	engine   string
	logLevel string
}

// parseFlags reads flags from args (args[0] is the program name).
// --config falls back to CONFIG_PATH.
func parseFlags(args []string, getenv func(string) string) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet("quotepdf", flag.ContinueOnError)
	fs.StringVarP(&f.config, "config", "c", getenv("CONFIG_PATH"), "path to YAML config file")
	fs.StringVarP(&f.port, "port", "p", "", "listen port, overrides config and PORT")
	fs.StringVar(&f.engine, "engine", "", "rendering engine: chromedp or rod")
	fs.StringVar(&f.logLevel, "log-level", "", "log level, overrides logger.level")
	if len(args) > 0 {
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	return f, nil
}
