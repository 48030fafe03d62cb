package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lk2023060901/dualser/application"
	"github.com/lk2023060901/dualser/internal/transcode"
	"github.com/lk2023060901/dualser/pkg/framer"
	"github.com/lk2023060901/dualser/pkg/layout"
	"github.com/lk2023060901/dualser/pkg/log"
	"github.com/lk2023060901/dualser/pkg/metrics"
	"github.com/lk2023060901/dualser/pkg/serializer"
	"github.com/lk2023060901/dualser/pkg/util/merr"
	"github.com/lk2023060901/dualser/pkg/util/typeutil"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2

	roleName = "dualser"

	// frameLengthPrefix 为 TrackLength 帧的长度前缀字节数。
	frameLengthPrefix = 2
)

type command struct {
	summary string
	run     func(env *environment) error
}

var commands = map[string]command{
	"encode": {
		summary: "交换格式记录 -> 二进制记录（json 为逐行输入，其他格式为分帧输入）",
		run:     runEncode,
	},
	"decode": {
		summary: "二进制记录 -> 交换格式记录（json 为逐行输出，其他格式为分帧输出）",
		run:     runDecode,
	},
	"layout": {
		summary: "校验布局并输出字段宽度",
		run:     runLayout,
	},
}

// environment 为单次命令执行的上下文。
type environment struct {
	app    *application.Application
	flags  *pflag.FlagSet
	in     io.Reader
	out    io.Writer
	stderr io.Writer
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: dualser <command> [flags]")
	fmt.Fprintln(w)
	names := lo.Keys(commands)
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		usage(stdout)
		return exitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr)
		return exitUsage
	}

	fs := pflag.NewFlagSet(roleName+" "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	application.RegisterFlags(fs)
	inPath := fs.String("in", "", "输入文件，默认标准输入")
	outPath := fs.String("out", "", "输出文件，默认标准输出")
	dumpMetrics := fs.Bool("metrics", false, "结束时将指标以文本格式输出到标准错误")
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	app := application.New()
	if err := app.Init(fs); err != nil {
		fmt.Fprintf(stderr, "dualser: %v\n", err)
		return exitUsage
	}
	defer log.Sync()

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	env := &environment{app: app, flags: fs, in: stdin, out: stdout, stderr: stderr}
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(stderr, "dualser: %v\n", merr.WrapErrIoFailed(*inPath, err))
			return exitError
		}
		defer f.Close()
		env.in = f
	}
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(stderr, "dualser: %v\n", merr.WrapErrIoFailed(*outPath, err))
			return exitError
		}
		defer f.Close()
		env.out = f
	}

	err := cmd.run(env)
	if *dumpMetrics {
		if werr := writeMetrics(stderr, registry); werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		log.Warn("command failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintf(stderr, "dualser %s: %v\n", name, err)
		return exitError
	}
	return exitOK
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}
	return nil
}

// layoutOf 优先使用位置参数中的布局，其次使用 --layout 或配置文件中的布局。
func (env *environment) layoutOf() (*layout.Layout, error) {
	source := env.app.Config().Serializer.Layout
	if env.flags.NArg() > 0 {
		source = strings.Join(env.flags.Args(), ",")
	}
	if strings.TrimSpace(source) == "" {
		return nil, merr.WrapErrParameterInvalidMsg("a field layout is required (--layout or serializer.layout)")
	}
	return layout.Parse(source)
}

func (env *environment) framer() *framer.LengthPrefixedFramer {
	return framer.NewLengthPrefixedFramer(env.app.Config().Serializer.MaxFrameSize)
}

func (env *environment) transcoder() (*transcode.Transcoder, error) {
	conf := env.app.Config().Serializer
	l, err := env.layoutOf()
	if err != nil {
		return nil, err
	}
	values, err := serializer.CodecFor(serializer.Format(conf.Format))
	if err != nil {
		return nil, err
	}
	codec := layout.NewCodec(l, conf.Version,
		layout.WithCapacity(conf.Capacity),
		layout.WithChecked(conf.Checked))
	tc := transcode.New(codec, values, conf.Workers)
	tc.SetLogger(env.app.Logger("transcode").With(log.FieldLayout(l.String()), log.FieldVersion(conf.Version)))
	return tc, nil
}

func (env *environment) isJSON() bool {
	format := strings.ToLower(strings.TrimSpace(env.app.Config().Serializer.Format))
	return format == "" || format == string(serializer.FormatJSON)
}

func runEncode(env *environment) error {
	var src recordSource
	if env.isJSON() {
		src = newLineSource(env.in, false)
	} else {
		src = env.frameSource()
	}
	var sink recordSink
	if env.app.Config().Serializer.Framed {
		sink = newFrameSink(env.out, env.framer())
	} else {
		sink = newLineSink(env.out, true)
	}
	return env.pump(metrics.EncodeOp, src, sink)
}

func runDecode(env *environment) error {
	var src recordSource
	if env.app.Config().Serializer.Framed {
		src = env.frameSource()
	} else {
		src = newLineSource(env.in, true)
	}
	var sink recordSink
	if env.isJSON() {
		sink = newLineSink(env.out, false)
	} else {
		sink = newFrameSink(env.out, env.framer())
	}
	return env.pump(metrics.DecodeOp, src, sink)
}

func (env *environment) frameSource() *frameSource {
	reader := framer.NewReader(env.in, env.framer())
	reader.SetLogger(env.app.Logger("framer"))
	return &frameSource{reader: reader}
}

// pump 按批次从 src 读取记录，转码后按原顺序写入 sink。
func (env *environment) pump(op string, src recordSource, sink recordSink) error {
	tc, err := env.transcoder()
	if err != nil {
		return err
	}
	defer tc.Close()

	batchSize := env.app.Config().Serializer.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	total := 0
	for done := false; !done; {
		batch := make([][]byte, 0, batchSize)
		for len(batch) < batchSize {
			record, err := src.Next()
			if err == io.EOF {
				done = true
				break
			}
			if err != nil {
				return errors.Wrapf(err, "read record %d", total+len(batch))
			}
			batch = append(batch, record)
		}
		if len(batch) == 0 {
			break
		}

		out, err := env.transcodeBatch(tc, op, total, batch)
		if err != nil {
			return errors.Wrapf(err, "batch starting at record %d", total)
		}
		for _, record := range out {
			if err := sink.Put(record); err != nil {
				return merr.WrapErrIoFailed("output", err)
			}
		}
		total += len(batch)
	}

	if err := sink.Flush(); err != nil {
		return merr.WrapErrIoFailed("output", err)
	}
	log.Info("transcode finished", zap.String(metrics.OpLabelName, op), zap.Int("records", total))
	return nil
}

func (env *environment) transcodeBatch(tc *transcode.Transcoder, op string, first int, batch [][]byte) ([][]byte, error) {
	ctx, span := log.NewIntentContext(roleName, op)
	defer span.End()
	ctx = log.WithFields(ctx, zap.Int("first", first), zap.Int("size", len(batch)))

	var (
		out [][]byte
		err error
	)
	if op == metrics.EncodeOp {
		out, err = tc.Encode(ctx, batch)
	} else {
		out, err = tc.Decode(ctx, batch)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	log.Ctx(ctx).Debug("batch transcoded")
	return out, nil
}

func runLayout(env *environment) error {
	l, err := env.layoutOf()
	if err != nil {
		return err
	}

	fmt.Fprintf(env.out, "layout: %s\n", l.String())
	fmt.Fprintf(env.out, "fields: %d\n", l.Len())
	if size, ok := l.FixedSize(); ok {
		fmt.Fprintf(env.out, "size: %d bytes\n", size)
	} else {
		fmt.Fprintln(env.out, "size: variable")
	}
	types := lo.Map(typeutil.Sorted(l.Types()), func(t serializer.FieldType, _ int) string {
		return t.String()
	})
	fmt.Fprintf(env.out, "types: %s\n", strings.Join(types, ","))
	printFields(env.out, l.Fields(), 1)
	return nil
}

func printFields(w io.Writer, fields []layout.Field, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, field := range fields {
		if field.Type == serializer.FieldFrame {
			fmt.Fprintf(w, "%sframe (%d bytes length prefix)\n", indent, frameLengthPrefix)
			printFields(w, field.Fields, depth+1)
			continue
		}
		if width := field.Type.Width(); width > 0 {
			fmt.Fprintf(w, "%s%s (%d bytes)\n", indent, field.Type, width)
		} else {
			fmt.Fprintf(w, "%s%s (variable)\n", indent, field.Type)
		}
	}
}
