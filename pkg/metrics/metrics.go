// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// dualserNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	dualserNamespace = "dualser"

	// 以下为当前使用的通用标签名。
	KindLabelName      = "kind"
	ModeLabelName      = "mode"
	ReasonLabelName    = "reason"
	DirectionLabelName = "direction"
	OpLabelName        = "op"
	StatusLabelName    = "status"

	// 常用标签值。
	BufferKind = "buffer"
	ArrayKind  = "array"

	InboundDirection  = "in"
	OutboundDirection = "out"

	EncodeOp = "encode"
	DecodeOp = "decode"

	SuccessStatus = "success"
	FailStatus    = "fail"
)

var (
	// buckets 为耗时直方图的桶划分，单位为毫秒。
	// 实际桶分布为：
	// [1 2 4 8 16 32 64 128 256 512 1024 2048 4096 8192 16384 32768 65536 1.31072e+05]
	buckets = prometheus.ExponentialBuckets(1, 2, 18)

	// recordSizeBuckets 为单条记录大小的桶划分，单位为字节。
	// [8 32 128 512 2048 8192 32768 131072 524288 2.097152e+06]
	recordSizeBuckets = prometheus.ExponentialBuckets(8, 4, 10)

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标。
// 通常应在进程启动时调用一次。
func Register(r prometheus.Registerer) {
	registerSerializerMetrics(r)
	registerFramerMetrics(r)
	registerTranscodeMetrics(r)
	metricRegisterer = r
}
