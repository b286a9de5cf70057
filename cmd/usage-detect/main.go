package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/openmeterlab/usage-detect/conv"
	"github.com/openmeterlab/usage-detect/detect"
	"github.com/openmeterlab/usage-detect/series"
)

var version = "No version provided"

var log = logrus.New()

type argSpec struct {
	Input      string  `arg:"-i,--input,required" help:"CSV file with timestamp,power rows"`
	Output     string  `arg:"-o,--out" help:"Optional CSV file to write detected events to"`
	ConfigFile string  `arg:"--config" help:"Optional YAML file with pipeline settings (flags win)"`
	Order      int     `arg:"--order" help:"Butterworth low-pass filter order"`
	Cutoff     float64 `arg:"--cutoff" help:"Low-pass cutoff frequency in Hz"`
	SampleRate float64 `arg:"--sample-rate" help:"Sampling frequency in Hz, 0 to estimate from the timestamps"`
	Threshold  float64 `arg:"--threshold" help:"Derivative magnitude below which the signal counts as flat"`
	Kernel     string  `arg:"--kernel" help:"Comma-separated matched-filter kernel values"`
	Trim       int     `arg:"--trim" help:"Leading samples dropped as filter startup transient, -1 for twice the filter order"`
	ConvMode   string  `arg:"--conv-mode" help:"Matched-filter convolution mode (full, same, valid)"`
	LogLevel   string  `arg:"-l,--log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (argSpec) Version() string {
	return version
}

// Flag defaults mirror detect.DefaultConfig so unset flags can be told apart
// from overrides when a config file is in play.
var flagDefaults = argSpec{
	Order:      5,
	Cutoff:     3,
	SampleRate: 0,
	Threshold:  1.5,
	Kernel:     "0,0,0,1,1,1,0,0,0",
	Trim:       -1,
	ConvMode:   "same",
}

func procArgs() argSpec {
	args := flagDefaults
	arg.MustParse(&args)
	return args
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err.Error())
	}
}

func runMain() error {
	log.SetFormatter(new(customFormatter))
	args := procArgs()
	setLogLevel(args.LogLevel)

	log.Info("Running version: ", version)

	cfg, err := buildConfig(args)
	if err != nil {
		return err
	}

	log.Infof("Reading power signal from %s", args.Input)
	s, err := series.Load(args.Input)
	if err != nil {
		return err
	}
	log.Infof("Loaded %d samples from %s to %s", s.Len(),
		s.Timestamps[0].Format("2006-01-02 15:04:05"), s.Timestamps[s.Len()-1].Format("2006-01-02 15:04:05"))

	if cfg.SampleRate == 0 {
		fs, err := s.SampleRate()
		if err != nil {
			return err
		}
		log.Infof("Estimated sample rate: %.3f Hz", fs)
		cfg.SampleRate = fs
	}

	events, err := detect.Run(cfg, s)
	if err != nil {
		return err
	}

	if err := events.VerifyAlternation(); err != nil {
		log.Warnf("Start/stop alternation check failed, review threshold and kernel tuning: %v", err)
	}

	printEpisodes(events)

	if args.Output != "" {
		if err := writeEventsCSV(args.Output, events); err != nil {
			return err
		}
		log.Infof("Wrote %d events to %s", len(events), args.Output)
	}
	return nil
}

// buildConfig layers the configuration: defaults, then the YAML file if one
// was given, then any flags that differ from their defaults.
func buildConfig(args argSpec) (detect.Config, error) {
	cfg := detect.DefaultConfig()
	cfg.SampleRate = 0 // estimated from timestamps unless configured
	cfg.TrimCount = -1 // resolved after overrides

	if args.ConfigFile != "" {
		if err := loadConfigFile(args.ConfigFile, &cfg); err != nil {
			return detect.Config{}, err
		}
	}

	if args.Order != flagDefaults.Order {
		cfg.Order = args.Order
	}
	if args.Cutoff != flagDefaults.Cutoff {
		cfg.Cutoff = args.Cutoff
	}
	if args.SampleRate != flagDefaults.SampleRate {
		cfg.SampleRate = args.SampleRate
	}
	if args.Threshold != flagDefaults.Threshold {
		cfg.Threshold = args.Threshold
	}
	if args.Kernel != flagDefaults.Kernel {
		kernel, err := parseKernel(args.Kernel)
		if err != nil {
			return detect.Config{}, err
		}
		cfg.Kernel = kernel
	}
	if args.ConvMode != flagDefaults.ConvMode {
		mode, err := conv.ParseMode(args.ConvMode)
		if err != nil {
			return detect.Config{}, err
		}
		cfg.Mode = mode
	}

	if args.Trim >= 0 {
		cfg.TrimCount = args.Trim
	}
	if cfg.TrimCount < 0 {
		// Startup transient spans roughly Order samples; the two
		// differentiation stages consume one more each.
		cfg.TrimCount = 2 * cfg.Order
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *detect.Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if v.IsSet("order") {
		cfg.Order = v.GetInt("order")
	}
	if v.IsSet("cutoff") {
		cfg.Cutoff = v.GetFloat64("cutoff")
	}
	if v.IsSet("sample-rate") {
		cfg.SampleRate = v.GetFloat64("sample-rate")
	}
	if v.IsSet("threshold") {
		cfg.Threshold = v.GetFloat64("threshold")
	}
	if v.IsSet("kernel") {
		kernel, err := parseKernel(strings.Join(v.GetStringSlice("kernel"), ","))
		if err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		cfg.Kernel = kernel
	}
	if v.IsSet("trim") {
		cfg.TrimCount = v.GetInt("trim")
	}
	if v.IsSet("conv-mode") {
		mode, err := conv.ParseMode(v.GetString("conv-mode"))
		if err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		cfg.Mode = mode
	}
	return nil
}

func parseKernel(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	kernel := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad kernel value %q", p)
		}
		kernel = append(kernel, v)
	}
	if len(kernel) == 0 {
		return nil, fmt.Errorf("empty kernel")
	}
	return kernel, nil
}

// printEpisodes pairs starts with the following stop and prints the usage
// episodes, numbered like the analysis report this tool replaces.
func printEpisodes(events detect.EventList) {
	if len(events) == 0 {
		log.Info("No active usage detected")
		return
	}

	log.Info("Active usage events:")
	count := 1
	var open *detect.Event
	for i := range events {
		e := events[i]
		switch e.Kind {
		case detect.KindStart:
			if open != nil {
				log.Warnf("Start at %s with no matching stop", open.Timestamp.Format("2006-01-02 15:04:05"))
			}
			open = &events[i]
		case detect.KindStop:
			if open == nil {
				log.Warnf("Stop at %s with no matching start", e.Timestamp.Format("2006-01-02 15:04:05"))
				continue
			}
			log.Infof("%2d- Start: %s, Stop: %s", count,
				open.Timestamp.Format("2006-01-02 15:04:05"), e.Timestamp.Format("2006-01-02 15:04:05"))
			count++
			open = nil
		}
	}
	if open != nil {
		log.Warnf("Start at %s with no matching stop", open.Timestamp.Format("2006-01-02 15:04:05"))
	}
}

func writeEventsCSV(path string, events detect.EventList) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp", "kind"}); err != nil {
		return err
	}
	for _, e := range events {
		if err := writer.Write([]string{e.Timestamp.Format(time.RFC3339Nano), string(e.Kind)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
