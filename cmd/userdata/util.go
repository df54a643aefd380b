package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danderson/userdata"
	"github.com/danderson/userdata/internal/config"
	"github.com/danderson/userdata/internal/logging"
)

type indenter struct {
	w          io.Writer
	prefix     string
	indentNext bool
}

func (i *indenter) v(v any) {
	fmt.Fprintf(i, "%v\n", v)
}

func (i *indenter) f(msg string, args ...any) {
	fmt.Fprintf(i, msg+"\n", args...)
}

func (i *indenter) Write(bs []byte) (int, error) {
	ret := 0
	for len(bs) > 0 {
		if i.indentNext {
			i.indentNext = false
			if _, err := io.WriteString(i.w, i.prefix); err != nil {
				return ret, err
			}
		}

		wr := bs
		if idx := bytes.IndexByte(bs, '\n'); idx >= 0 {
			i.indentNext = true
			wr, bs = bs[:idx+1], bs[idx+1:]
		} else {
			bs = nil
		}

		n, err := i.w.Write(wr)
		ret += n
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}

func (i *indenter) indent(n int) {
	i.prefix = strings.Repeat("  ", n)
}

func logger(component string) (logging.Logger, error) {
	return logging.New(component, logging.Output(os.Stderr), logging.Level(globalArgs.LogLevel))
}

// loadConfig loads the --config file or, failing that, the user's
// default configuration file. With neither, it returns an empty
// configuration.
func loadConfig() (*config.File, error) {
	path := globalArgs.Config
	if path == "" {
		if home, err := config.UserHome(); err == nil {
			path = home.DefaultFile()
		}
	}
	if path == "" {
		return &config.File{}, nil
	}
	return config.Load(path)
}

type decodeFunc func(context.Context, *userdata.Decoder, io.Reader) (*userdata.DecodeReport, error)

func decode(_ context.Context, dec *userdata.Decoder, r io.Reader) (*userdata.DecodeReport, error) {
	return dec.Decode(r)
}

// decodeFile runs fn over the message in file, or standard input if
// file is "-", with the configured registry.
func decodeFile(ctx context.Context, file string, fn decodeFunc) (*userdata.DecodeReport, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dec := &userdata.Decoder{Registry: cfg.Registry(userdata.DefaultRegistry)}

	r := io.Reader(os.Stdin)
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	rep, err := fn(ctx, dec, r)
	if err != nil {
		return rep, fmt.Errorf("decoding %s: %w", file, err)
	}
	return rep, nil
}

// partSummary is a fragment without its body, for verbose output.
type partSummary struct {
	Name        string
	Kind        userdata.Kind
	ContentType string
	Size        int
}

type reportSummary struct {
	Boundary    string
	Parts       []partSummary
	Diagnostics []userdata.Diagnostic
}

func summarize(rep *userdata.DecodeReport) reportSummary {
	ret := reportSummary{
		Boundary:    rep.Boundary,
		Diagnostics: rep.Diagnostics,
	}
	for _, f := range rep.Fragments {
		ret.Parts = append(ret.Parts, partSummary{f.Name, f.Kind, f.ContentType, len(f.Body)})
	}
	return ret
}
