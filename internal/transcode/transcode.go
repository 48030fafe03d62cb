// Package transcode 在交换格式（JSON/CBOR/MessagePack/Protobuf）记录与二进制记录之间批量转换。
// 每条记录由协程池中的一个任务处理，输出顺序与输入顺序一致。
package transcode

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/dualser/pkg/layout"
	"github.com/lk2023060901/dualser/pkg/log"
	"github.com/lk2023060901/dualser/pkg/metrics"
	"github.com/lk2023060901/dualser/pkg/serializer"
	"github.com/lk2023060901/dualser/pkg/util/conc"
	"github.com/lk2023060901/dualser/pkg/util/merr"
)

// Transcoder 绑定一个布局编解码器与一种值交换格式。
// 创建后可并发调用 Encode/Decode，使用完毕后需调用 Close 释放协程池。
type Transcoder struct {
	log.Binder

	codec  *layout.Codec
	values serializer.ValueCodec
	pool   *conc.Pool[[]byte]
}

// New 创建转码器，workers 非正时使用 GOMAXPROCS。
func New(codec *layout.Codec, values serializer.ValueCodec, workers int) *Transcoder {
	if values == nil {
		values = serializer.JSONCodec{}
	}
	return &Transcoder{
		codec:  codec,
		values: values,
		pool:   conc.NewPool[[]byte](workers),
	}
}

// Workers 返回协程池容量。
func (t *Transcoder) Workers() int {
	return t.pool.Cap()
}

// Encode 将交换格式记录逐条编码为二进制记录。
// 任一记录失败时返回所有失败记录合并后的错误，每个错误带有记录序号。
func (t *Transcoder) Encode(ctx context.Context, records [][]byte) ([][]byte, error) {
	return t.run(ctx, metrics.EncodeOp, records, func(record []byte) ([]byte, error) {
		values, err := t.values.Unmarshal(record)
		if err != nil {
			return nil, err
		}
		return t.codec.Encode(values)
	})
}

// Decode 将二进制记录逐条解码为交换格式记录。
// 记录末尾存在未消费的字节时视为参数错误。
func (t *Transcoder) Decode(ctx context.Context, records [][]byte) ([][]byte, error) {
	return t.run(ctx, metrics.DecodeOp, records, func(record []byte) ([]byte, error) {
		values, next, err := t.codec.Decode(record)
		if err != nil {
			return nil, err
		}
		if next != len(record) {
			return nil, merr.WrapErrParameterInvalid(len(record), next, "trailing bytes after record")
		}
		return t.values.Marshal(values)
	})
}

func (t *Transcoder) run(ctx context.Context, op string, records [][]byte, fn func([]byte) ([]byte, error)) ([][]byte, error) {
	start := time.Now()
	logger := t.Logger().With(zap.String(metrics.OpLabelName, op), zap.Int("records", len(records)))

	futures := make([]*conc.Future[[]byte], 0, len(records))
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			// 已提交的任务仍需等待结束。
			_ = conc.AwaitAll(futures...)
			return nil, err
		}
		futures = append(futures, t.pool.Submit(func() ([]byte, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := fn(record)
			if err != nil {
				return nil, errors.Wrapf(err, "record %d", i)
			}
			return out, nil
		}))
	}

	out := make([][]byte, len(futures))
	var errs []error
	for i, future := range futures {
		value, err := future.Await()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[i] = value
	}
	failed := len(errs)

	metrics.TranscodeRecords.WithLabelValues(op, metrics.SuccessStatus).Add(float64(len(futures) - failed))
	metrics.TranscodeRecords.WithLabelValues(op, metrics.FailStatus).Add(float64(failed))
	metrics.TranscodeBatchLatency.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))

	if err := merr.Combine(errs...); err != nil {
		logger.Warn("transcode batch failed", zap.Int("failed", failed), zap.Error(err))
		return nil, err
	}
	logger.RatedInfo(1, "transcode batch finished", zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// Close 释放协程池。
func (t *Transcoder) Close() {
	t.pool.Release()
}
