package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/danderson/userdata"
	"github.com/danderson/userdata/cloudconfig"
	"github.com/danderson/userdata/internal/atomicfile"
	"github.com/danderson/userdata/internal/config"
	"github.com/danderson/userdata/internal/logging"
	"github.com/kr/pretty"
)

var globalArgs struct {
	LogLevel string `flag:"log-level,default=warn,Minimum level of log messages: debug or info or warn or error"`
	Config   string `flag:"config,Configuration file in YAML or TOML"`
}

// stdout is where commands write their results. Logs go to stderr.
var stdout io.Writer = os.Stdout

func newRoot() *command.C {
	return &command.C{
		Name:     "userdata",
		Usage:    "command args...",
		Help:     "Assemble and take apart cloud-init user-data messages.",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "make",
				Usage: "make [flags] [path:kind...]",
				Help: `Assemble fragments into a user-data message.

Each argument names a fragment file, relative to --root, and its
content kind, such as "install.yml:jinja2". With no arguments, the
fragments listed under cloud_init in the configuration file are used.

The message is written to --out if set, else to the configured
output, else to ~/.cache/chiron/cloud_init/user_data. An --out of "-"
writes to stdout.

Fragments that cannot be read, or whose kind is unknown, are left out
and reported. The command fails only if nothing could be assembled,
or with --strict if any kind is unknown.`,
				SetFlags: command.Flags(flax.MustBind, &makeArgs),
				Run:      runMake,
			},
			{
				Name:  "read",
				Usage: "read [--dst dir] file",
				Help: `Restore the fragments of a user-data message.

Fragments are written under --dst, recreating the directories of their
declared filenames. A file of "-" reads standard input.`,
				SetFlags: command.Flags(flax.MustBind, &readArgs),
				Run:      command.Adapt(runRead),
			},
			{
				Name:     "inspect",
				Usage:    "inspect [--verbose] file",
				Help:     "List the parts of a user-data message, and any problems found.",
				SetFlags: command.Flags(flax.MustBind, &inspectArgs),
				Run:      command.Adapt(runInspect),
			},
			{
				Name:  "plan",
				Usage: "plan file",
				Help: `Print the install plan of a user-data message.

The cloud-config parts of the message, including jinja2 parts that
produce cloud-config, are merged in order into a single cloud-config
document.`,
				Run: command.Adapt(runPlan),
			},
			{
				Name:  "kinds",
				Usage: "kinds",
				Help:  "List the registered content kinds and their Content-Types.",
				Run:   command.Adapt(runKinds),
			},
			{
				Name:  "boundary",
				Usage: "boundary",
				Help:  "Print a freshly generated multipart boundary.",
				Run:   command.Adapt(runBoundary),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := newRoot().NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

var makeArgs struct {
	Root   string `flag:"root,Fragment root directory; defaults to the configured root or ~/.local/share/chiron/cloud_init"`
	Out    string `flag:"out,Output file or - for stdout; defaults to the configured output or ~/.cache/chiron/cloud_init/user_data"`
	Gzip   bool   `flag:"gzip,Compress the message with gzip"`
	Strict bool   `flag:"strict,Fail if any fragment kind is unknown"`
}

func runMake(env *command.Env) error {
	log, err := logger("make")
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	refs := make([]userdata.Ref, 0, len(env.Args))
	for _, arg := range env.Args {
		ref, err := userdata.ParseRef(arg)
		if err != nil {
			return env.Usagef("%v", err)
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		if refs, err = cfg.Refs(); err != nil {
			return err
		}
		if len(refs) == 0 {
			return env.Usagef("no fragments given, and none listed in the configuration")
		}
	}

	root := cmp.Or(makeArgs.Root, cfg.Root)
	out := cmp.Or(makeArgs.Out, cfg.Output)
	if root == "" || out == "" {
		home, err := config.UserHome()
		if err != nil {
			return fmt.Errorf("finding default paths: %w", err)
		}
		root = cmp.Or(root, home.Data(config.CloudInit))
		out = cmp.Or(out, home.UserData())
	}
	enc := userdata.Encoder{
		Registry: cfg.Registry(userdata.DefaultRegistry),
		Strict:   makeArgs.Strict || cfg.Strict,
		Gzip:     makeArgs.Gzip || cfg.Gzip,
	}

	var (
		w    io.Writer = stdout
		file *atomicfile.File
	)
	if out != "-" {
		if file, err = atomicfile.Create(out, 0644); err != nil {
			return err
		}
		defer file.Abort()
		w = file
	}

	log.WithField("root", root).Debugf("assembling %d fragments", len(refs))
	rep, err := enc.EncodeDir(env.Context(), w, userdata.DirSource{Root: root}, refs)
	logging.Diagnostics(log, rep.Diagnostics)
	if err != nil {
		return err
	}
	if rep.Failed() {
		return errors.New("no fragment could be assembled")
	}
	if file != nil {
		if err := file.Commit(); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
	}
	log.WithField("boundary", rep.Boundary).Infof("wrote %d parts to %s", len(rep.Parts), out)
	return nil
}

var readArgs struct {
	Dst string `flag:"dst,default=.,Directory to restore fragments under"`
}

func runRead(env *command.Env, file string) error {
	log, err := logger("read")
	if err != nil {
		return err
	}
	rep, err := decodeFile(env.Context(), file, func(ctx context.Context, dec *userdata.Decoder, r io.Reader) (*userdata.DecodeReport, error) {
		return dec.DecodeDir(ctx, r, readArgs.Dst)
	})
	if rep != nil {
		logging.Diagnostics(log, rep.Diagnostics)
	}
	if err != nil {
		return err
	}
	if rep.Failed() {
		return errors.New("no fragment could be restored")
	}
	for _, f := range rep.Fragments {
		log.WithField("kind", f.Kind).Infof("restored %s", f.Name)
	}
	return nil
}

var inspectArgs struct {
	Verbose bool `flag:"verbose,Print the full decode report"`
}

func runInspect(env *command.Env, file string) error {
	rep, err := decodeFile(env.Context(), file, decode)
	if err != nil {
		return err
	}
	if inspectArgs.Verbose {
		pretty.Fprintf(stdout, "%# v\n", summarize(rep))
		return nil
	}

	out := indenter{w: stdout}
	out.f("boundary %s", rep.Boundary)
	out.f("%d parts", len(rep.Fragments))
	out.indent(1)
	for _, f := range rep.Fragments {
		kind := string(f.Kind)
		if kind == "" {
			kind = "? " + f.ContentType
		}
		out.f("%s (%s, %d bytes)", f.Name, kind, len(f.Body))
	}
	if len(rep.Diagnostics) > 0 {
		out.indent(0)
		out.f("%d problems", len(rep.Diagnostics))
		out.indent(1)
		for _, d := range rep.Diagnostics {
			out.v(d)
		}
	}
	return nil
}

func runPlan(env *command.Env, file string) error {
	log, err := logger("plan")
	if err != nil {
		return err
	}
	rep, err := decodeFile(env.Context(), file, decode)
	if err != nil {
		return err
	}
	logging.Diagnostics(log, rep.Diagnostics)

	plan := cloudconfig.Merge(rep.Fragments)
	for _, s := range plan.Skipped {
		log.WithField("fragment", s.Name).Info(s.Reason)
	}
	bs, err := plan.Config.Render()
	if err != nil {
		return err
	}
	_, err = stdout.Write(bs)
	return err
}

func runKinds(env *command.Env) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg := cfg.Registry(userdata.DefaultRegistry)
	for _, k := range reg.Kinds() {
		ct, _ := reg.Resolve(k)
		fmt.Fprintf(stdout, "%s\t%s\n", k, ct)
	}
	return nil
}

func runBoundary(env *command.Env) error {
	fmt.Fprintln(stdout, userdata.NewBoundary())
	return nil
}
